package lending_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/lending-engine-go/lending"
	"github.com/campuslib/lending-engine-go/lending/memoryengine"
)

const (
	testStudentUID = lending.StudentID("21CSE01234")
	otherUID       = lending.StudentID("20ECE04321")
)

var testNow = time.Date(2026, 2, 10, 15, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, options ...lending.EngineOption) (*lending.Engine, *memoryengine.Store) {
	t.Helper()

	store := memoryengine.NewStore()
	options = append([]lending.EngineOption{lending.WithClock(func() time.Time { return testNow })}, options...)

	return lending.NewEngine(store, options...), store
}

func addTestBook(t *testing.T, engine *lending.Engine, title string) lending.BookID {
	t.Helper()

	book, err := engine.AddBook(context.Background(), title, "Some Author", "", 2020, "Programming")
	require.NoError(t, err)

	return book.ID
}

func registerTestStudent(t *testing.T, engine *lending.Engine, uid lending.StudentID) {
	t.Helper()

	_, err := engine.EnsureStudent(context.Background(), uid, "")
	require.NoError(t, err)
}

func Test_Borrow_Succeeds_AndComputesDueDate(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "The Go Programming Language")
	registerTestStudent(t, engine, testStudentUID)

	// act
	dueAt, err := engine.Borrow(ctx, bookID, testStudentUID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC), dueAt)

	book, getErr := engine.GetBook(ctx, bookID)
	require.NoError(t, getErr)
	assert.False(t, book.Available)
	assert.Equal(t, testStudentUID, book.BorrowedBy)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), book.BorrowedAt)
	assert.Equal(t, dueAt, book.DueAt)
	assert.NoError(t, book.CheckInvariants())
}

func Test_Borrow_AwardsPoints_AndAppendsOpenLoan(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "The Pragmatic Programmer")
	registerTestStudent(t, engine, testStudentUID)

	// act
	_, err := engine.Borrow(ctx, bookID, testStudentUID)

	// assert
	require.NoError(t, err)

	student, studentErr := engine.GetStudent(ctx, testStudentUID)
	require.NoError(t, studentErr)
	assert.Equal(t, 10, student.Points)
	assert.Equal(t, 1, student.BooksBorrowed)
	assert.Equal(t, 0, student.BooksReturned)

	history, historyErr := engine.History(ctx, testStudentUID)
	require.NoError(t, historyErr)
	require.Len(t, history, 1)
	assert.Equal(t, bookID, history[0].BookID)
	assert.Equal(t, lending.LoanStatusBorrowed, history[0].Status)
	assert.True(t, history[0].IsOpen())
}

func Test_Borrow_Fails_WhenBookAlreadyBorrowed(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "Refactoring")
	registerTestStudent(t, engine, testStudentUID)
	registerTestStudent(t, engine, otherUID)

	_, err := engine.Borrow(ctx, bookID, testStudentUID)
	require.NoError(t, err)

	// act
	_, err = engine.Borrow(ctx, bookID, otherUID)

	// assert
	assert.ErrorIs(t, err, lending.ErrBookUnavailable)

	student, studentErr := engine.GetStudent(ctx, otherUID)
	require.NoError(t, studentErr)
	assert.Equal(t, 0, student.Points)

	history, historyErr := engine.History(ctx, otherUID)
	require.NoError(t, historyErr)
	assert.Empty(t, history)
}

func Test_Borrow_Fails_WhenBookDoesNotExist(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	registerTestStudent(t, engine, testStudentUID)

	// act
	_, err := engine.Borrow(context.Background(), 999, testStudentUID)

	// assert
	assert.ErrorIs(t, err, lending.ErrBookUnavailable)
}

func Test_Borrow_Fails_WhenStudentUnknown(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	bookID := addTestBook(t, engine, "Domain-Driven Design")

	// act
	_, err := engine.Borrow(context.Background(), bookID, testStudentUID)

	// assert
	assert.ErrorIs(t, err, lending.ErrStudentNotFound)

	book, getErr := engine.GetBook(context.Background(), bookID)
	require.NoError(t, getErr)
	assert.True(t, book.Available)
}

func Test_Borrow_Fails_WhenStudentIDMalformed(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	bookID := addTestBook(t, engine, "Code Complete")

	// act
	_, err := engine.Borrow(context.Background(), bookID, "not-a-uid")

	// assert
	assert.ErrorIs(t, err, lending.ErrInvalidStudentID)
}

func Test_Borrow_ConcurrentAttempts_ExactlyOneWins(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "The Mythical Man-Month")

	const attempts = 16
	uids := make([]lending.StudentID, 0, attempts)

	for i := 0; i < attempts; i++ {
		uid := lending.StudentID(fmt.Sprintf("21CSE%05d", i))
		registerTestStudent(t, engine, uid)
		uids = append(uids, uid)
	}

	// act
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()
			_, results[idx] = engine.Borrow(ctx, bookID, uids[idx])
		}(i)
	}

	wg.Wait()

	// assert
	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, lending.ErrBookUnavailable)
		}
	}
	assert.Equal(t, 1, successes)

	book, getErr := engine.GetBook(ctx, bookID)
	require.NoError(t, getErr)
	assert.False(t, book.Available)
	assert.NoError(t, book.CheckInvariants())
}

func Test_Return_Succeeds_AndClosesLoan(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "A Philosophy of Software Design")
	registerTestStudent(t, engine, testStudentUID)

	_, err := engine.Borrow(ctx, bookID, testStudentUID)
	require.NoError(t, err)

	// act
	err = engine.Return(ctx, bookID, testStudentUID)

	// assert
	require.NoError(t, err)

	book, getErr := engine.GetBook(ctx, bookID)
	require.NoError(t, getErr)
	assert.True(t, book.Available)
	assert.Empty(t, book.BorrowedBy)
	assert.True(t, book.DueAt.IsZero())
	assert.NoError(t, book.CheckInvariants())

	student, studentErr := engine.GetStudent(ctx, testStudentUID)
	require.NoError(t, studentErr)
	assert.Equal(t, 25, student.Points) // 10 for the borrow, 15 for the return
	assert.Equal(t, 1, student.BooksBorrowed)
	assert.Equal(t, 1, student.BooksReturned)

	history, historyErr := engine.History(ctx, testStudentUID)
	require.NoError(t, historyErr)
	require.Len(t, history, 1)
	assert.Equal(t, lending.LoanStatusReturned, history[0].Status)
	assert.False(t, history[0].IsOpen())
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), history[0].ReturnedAt)
}

func Test_Return_Fails_WhenBorrowedBySomeoneElse(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "Working Effectively with Legacy Code")
	registerTestStudent(t, engine, testStudentUID)
	registerTestStudent(t, engine, otherUID)

	_, err := engine.Borrow(ctx, bookID, testStudentUID)
	require.NoError(t, err)

	// act
	err = engine.Return(ctx, bookID, otherUID)

	// assert
	assert.ErrorIs(t, err, lending.ErrNotBorrowedByCaller)

	book, getErr := engine.GetBook(ctx, bookID)
	require.NoError(t, getErr)
	assert.False(t, book.Available)
	assert.Equal(t, testStudentUID, book.BorrowedBy)
}

func Test_Return_Fails_OnSecondReturn(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "Structure and Interpretation of Computer Programs")
	registerTestStudent(t, engine, testStudentUID)

	_, err := engine.Borrow(ctx, bookID, testStudentUID)
	require.NoError(t, err)
	require.NoError(t, engine.Return(ctx, bookID, testStudentUID))

	// act
	err = engine.Return(ctx, bookID, testStudentUID)

	// assert
	assert.ErrorIs(t, err, lending.ErrNotBorrowedByCaller)

	student, studentErr := engine.GetStudent(ctx, testStudentUID)
	require.NoError(t, studentErr)
	assert.Equal(t, 25, student.Points)
	assert.Equal(t, 1, student.BooksReturned)
}

func Test_Return_Fails_WhenNeverBorrowed(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	bookID := addTestBook(t, engine, "The C Programming Language")
	registerTestStudent(t, engine, testStudentUID)

	// act
	err := engine.Return(context.Background(), bookID, testStudentUID)

	// assert
	assert.ErrorIs(t, err, lending.ErrNotBorrowedByCaller)
}

func Test_Rate_ComputesRunningAverage(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "Designing Data-Intensive Applications")
	registerTestStudent(t, engine, testStudentUID)
	registerTestStudent(t, engine, otherUID)

	for _, uid := range []lending.StudentID{testStudentUID, otherUID} {
		_, err := engine.Borrow(ctx, bookID, uid)
		require.NoError(t, err)
		require.NoError(t, engine.Return(ctx, bookID, uid))
	}

	// act
	first, err := engine.Rate(ctx, bookID, testStudentUID, 4)
	require.NoError(t, err)

	second, err := engine.Rate(ctx, bookID, otherUID, 5)
	require.NoError(t, err)

	// assert
	assert.InDelta(t, 4.0, first, 0.0001)
	assert.InDelta(t, 4.5, second, 0.0001)

	book, getErr := engine.GetBook(ctx, bookID)
	require.NoError(t, getErr)
	assert.Equal(t, 2, book.RatingCount)
	assert.InDelta(t, 4.5, book.Rating, 0.0001)
}

func Test_Rate_RunningAverage_OverThreeRatings(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t, lending.WithOpenRating())
	ctx := context.Background()
	bookID := addTestBook(t, engine, "Gödel, Escher, Bach")

	raters := []lending.StudentID{"21CSE00001", "21CSE00002", "21CSE00003"}
	for _, uid := range raters {
		registerTestStudent(t, engine, uid)
	}

	// act
	var average float64
	for i, score := range []int{4, 5, 3} {
		var err error
		average, err = engine.Rate(ctx, bookID, raters[i], score)
		require.NoError(t, err)
	}

	// assert
	assert.InDelta(t, 4.0, average, 0.0001)

	book, getErr := engine.GetBook(ctx, bookID)
	require.NoError(t, getErr)
	assert.Equal(t, 3, book.RatingCount)
}

func Test_Rate_Fails_OnOutOfRangeScore(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	bookID := addTestBook(t, engine, "Effective Go Patterns")
	registerTestStudent(t, engine, testStudentUID)

	for _, score := range []int{0, -1, 6, 100} {
		// act
		_, err := engine.Rate(context.Background(), bookID, testStudentUID, score)

		// assert
		assert.ErrorIs(t, err, lending.ErrInvalidRating)
	}
}

func Test_Rate_Fails_ForStudentWithoutLoanRecord(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	bookID := addTestBook(t, engine, "Compilers: Principles, Techniques, and Tools")
	registerTestStudent(t, engine, testStudentUID)

	// act
	_, err := engine.Rate(context.Background(), bookID, testStudentUID, 5)

	// assert
	assert.ErrorIs(t, err, lending.ErrNotBorrowedByCaller)
}

func Test_Rate_OpenRating_AllowsAnyStudent(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t, lending.WithOpenRating())
	bookID := addTestBook(t, engine, "The Art of Computer Programming")
	registerTestStudent(t, engine, testStudentUID)

	// act
	average, err := engine.Rate(context.Background(), bookID, testStudentUID, 3)

	// assert
	require.NoError(t, err)
	assert.InDelta(t, 3.0, average, 0.0001)
}

func Test_Rate_Fails_WhenBookDoesNotExist(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	registerTestStudent(t, engine, testStudentUID)

	// act
	_, err := engine.Rate(context.Background(), 999, testStudentUID, 4)

	// assert
	assert.ErrorIs(t, err, lending.ErrBookNotFound)
}

func Test_Search_MatchesSubstringCaseInsensitive(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddBook(ctx, "The Go Programming Language", "Donovan", "", 2015, "Programming")
	require.NoError(t, err)
	_, err = engine.AddBook(ctx, "Learning Go", "Bodner", "", 2021, "Programming")
	require.NoError(t, err)
	_, err = engine.AddBook(ctx, "Clean Architecture", "Martin", "", 2017, "Design")
	require.NoError(t, err)

	// act
	books, searchErr := engine.Search(ctx, lending.SearchByTitle, "gO")

	// assert
	require.NoError(t, searchErr)
	require.Len(t, books, 2)

	// ordered by title ascending
	assert.Equal(t, "Learning Go", books[0].Title)
	assert.Equal(t, "The Go Programming Language", books[1].Title)
}

func Test_Search_UnknownFieldFallsBackToTitle(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddBook(ctx, "Patterns of Enterprise Application Architecture", "Fowler", "", 2002, "Design")
	require.NoError(t, err)

	// act
	books, searchErr := engine.Search(ctx, "publisher", "patterns")

	// assert
	require.NoError(t, searchErr)
	assert.Len(t, books, 1)
}

func Test_Search_ByAuthorAndCategory(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddBook(ctx, "Refactoring", "Martin Fowler", "", 1999, "Design")
	require.NoError(t, err)
	_, err = engine.AddBook(ctx, "Clean Code", "Robert Martin", "", 2008, "Craftsmanship")
	require.NoError(t, err)

	// act
	byAuthor, authorErr := engine.Search(ctx, lending.SearchByAuthor, "martin")
	byCategory, categoryErr := engine.Search(ctx, lending.SearchByCategory, "craft")

	// assert
	require.NoError(t, authorErr)
	assert.Len(t, byAuthor, 2)

	require.NoError(t, categoryErr)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Clean Code", byCategory[0].Title)
}

func Test_Leaderboard_OrdersByPoints_TiesByRegistrationOrder(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	first := lending.StudentID("21CSE00001")
	second := lending.StudentID("21CSE00002")
	third := lending.StudentID("21CSE00003")
	idle := lending.StudentID("21CSE00004")

	for _, uid := range []lending.StudentID{first, second, third, idle} {
		registerTestStudent(t, engine, uid)
	}

	// third earns 25 points, first and second tie at 10
	bookA := addTestBook(t, engine, "Book A")
	bookB := addTestBook(t, engine, "Book B")
	bookC := addTestBook(t, engine, "Book C")

	_, err := engine.Borrow(ctx, bookA, third)
	require.NoError(t, err)
	require.NoError(t, engine.Return(ctx, bookA, third))

	_, err = engine.Borrow(ctx, bookB, first)
	require.NoError(t, err)
	_, err = engine.Borrow(ctx, bookC, second)
	require.NoError(t, err)

	// act
	board, boardErr := engine.Leaderboard(ctx)

	// assert
	require.NoError(t, boardErr)
	require.Len(t, board, 3)
	assert.Equal(t, third, board[0].UID)
	assert.Equal(t, first, board[1].UID)
	assert.Equal(t, second, board[2].UID)
}

func Test_Leaderboard_CapsAtTenEntries(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		uid := lending.StudentID(fmt.Sprintf("21CSE%05d", i))
		registerTestStudent(t, engine, uid)

		bookID := addTestBook(t, engine, fmt.Sprintf("Book %02d", i))
		_, err := engine.Borrow(ctx, bookID, uid)
		require.NoError(t, err)
	}

	// act
	board, err := engine.Leaderboard(ctx)

	// assert
	require.NoError(t, err)
	assert.Len(t, board, 10)
}

func Test_EnsureStudent_CreatesWithDerivedDefaults(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)

	// act
	student, err := engine.EnsureStudent(context.Background(), testStudentUID, "")

	// assert
	require.NoError(t, err)
	assert.Equal(t, testStudentUID, student.UID)
	assert.Equal(t, "Student 01234", student.Name)
	assert.Equal(t, "CSE", student.Department)
	assert.Equal(t, 2021, student.Year)
	assert.Equal(t, 0, student.Points)
}

func Test_EnsureStudent_IsIdempotent(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := engine.EnsureStudent(ctx, testStudentUID, "Ada Lovelace")
	require.NoError(t, err)

	// act
	again, err := engine.EnsureStudent(ctx, testStudentUID, "Different Name")

	// assert
	require.NoError(t, err)
	assert.Equal(t, created, again)
	assert.Equal(t, "Ada Lovelace", again.Name)
}

func Test_EnsureStudent_Fails_OnMalformedUID(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.EnsureStudent(context.Background(), "bogus", "")

	assert.ErrorIs(t, err, lending.ErrInvalidStudentID)
}

func Test_History_SurvivesBookDeletion(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	bookID := addTestBook(t, engine, "Out of Print")
	registerTestStudent(t, engine, testStudentUID)

	_, err := engine.Borrow(ctx, bookID, testStudentUID)
	require.NoError(t, err)
	require.NoError(t, engine.Return(ctx, bookID, testStudentUID))

	// act
	require.NoError(t, engine.RemoveBook(ctx, bookID))

	// assert
	_, getErr := engine.GetBook(ctx, bookID)
	assert.ErrorIs(t, getErr, lending.ErrBookNotFound)

	history, historyErr := engine.History(ctx, testStudentUID)
	require.NoError(t, historyErr)
	require.Len(t, history, 1)
	assert.Equal(t, bookID, history[0].BookID)
}

func Test_History_MostRecentFirst(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	registerTestStudent(t, engine, testStudentUID)

	bookA := addTestBook(t, engine, "First Borrow")
	bookB := addTestBook(t, engine, "Second Borrow")

	_, err := engine.Borrow(ctx, bookA, testStudentUID)
	require.NoError(t, err)
	_, err = engine.Borrow(ctx, bookB, testStudentUID)
	require.NoError(t, err)

	// act
	history, historyErr := engine.History(ctx, testStudentUID)

	// assert
	require.NoError(t, historyErr)
	require.Len(t, history, 2)
	assert.Equal(t, bookB, history[0].BookID)
	assert.Equal(t, bookA, history[1].BookID)
}

func Test_Stats_CountsCatalogAndRoster(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	bookA := addTestBook(t, engine, "Borrowed One")
	addTestBook(t, engine, "Available One")
	addTestBook(t, engine, "Available Two")
	registerTestStudent(t, engine, testStudentUID)

	_, err := engine.Borrow(ctx, bookA, testStudentUID)
	require.NoError(t, err)

	// act
	stats, statsErr := engine.Stats(ctx)

	// assert
	require.NoError(t, statsErr)
	assert.Equal(t, 3, stats.TotalBooks)
	assert.Equal(t, 2, stats.AvailableBooks)
	assert.Equal(t, 1, stats.BorrowedBooks)
	assert.Equal(t, 1, stats.TotalStudents)
}

func Test_RemoveBook_Fails_WhenBookDoesNotExist(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.RemoveBook(context.Background(), 404)

	assert.ErrorIs(t, err, lending.ErrBookNotFound)
}

func Test_WithLoanPeriod_OverridesDueDate(t *testing.T) {
	// arrange
	engine, _ := newTestEngine(t, lending.WithLoanPeriod(7))
	registerTestStudent(t, engine, testStudentUID)
	bookID := addTestBook(t, engine, "Short Loan")

	// act
	dueAt, err := engine.Borrow(context.Background(), bookID, testStudentUID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC), dueAt)
}
