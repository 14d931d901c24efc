package memoryengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/lending-engine-go/lending"
	"github.com/campuslib/lending-engine-go/lending/memoryengine"
)

var errBoom = errors.New("boom")

func Test_WithinTx_RollsBackAllMutations_OnError(t *testing.T) {
	// arrange
	store := memoryengine.NewStore()
	ctx := context.Background()

	bookID, err := store.InsertBook(ctx, lending.Book{Title: "Atomic Habits"})
	require.NoError(t, err)

	_, _, err = store.InsertStudent(ctx, lending.Student{UID: "21CSE01234", Name: "Ada"})
	require.NoError(t, err)

	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	// act
	txErr := store.WithinTx(ctx, func(tx lending.Tx) error {
		borrowed, markErr := tx.MarkBookBorrowed(ctx, bookID, "21CSE01234", day, day.AddDate(0, 0, 14))
		require.NoError(t, markErr)
		require.True(t, borrowed)

		if deltaErr := tx.ApplyStudentDeltas(ctx, "21CSE01234", 10, 1, 0); deltaErr != nil {
			return deltaErr
		}

		return errBoom
	})

	// assert
	assert.ErrorIs(t, txErr, errBoom)

	book, getErr := store.GetBook(ctx, bookID)
	require.NoError(t, getErr)
	assert.True(t, book.Available)
	assert.Empty(t, book.BorrowedBy)

	student, studentErr := store.GetStudent(ctx, "21CSE01234")
	require.NoError(t, studentErr)
	assert.Equal(t, 0, student.Points)
	assert.Equal(t, 0, student.BooksBorrowed)
}

func Test_WithinTx_CommitsAllMutations_OnSuccess(t *testing.T) {
	// arrange
	store := memoryengine.NewStore()
	ctx := context.Background()

	bookID, err := store.InsertBook(ctx, lending.Book{Title: "Deep Work"})
	require.NoError(t, err)

	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	// act
	txErr := store.WithinTx(ctx, func(tx lending.Tx) error {
		borrowed, markErr := tx.MarkBookBorrowed(ctx, bookID, "21CSE01234", day, day.AddDate(0, 0, 14))
		if markErr != nil {
			return markErr
		}

		require.True(t, borrowed)

		return tx.AppendLoan(ctx, lending.BuildOpenLoan("21CSE01234", bookID, day))
	})

	// assert
	require.NoError(t, txErr)

	book, getErr := store.GetBook(ctx, bookID)
	require.NoError(t, getErr)
	assert.False(t, book.Available)

	loans, loansErr := store.LoansByStudent(ctx, "21CSE01234")
	require.NoError(t, loansErr)
	assert.Len(t, loans, 1)
}

func Test_MarkBookBorrowed_ReturnsFalse_WhenUnavailableOrMissing(t *testing.T) {
	// arrange
	store := memoryengine.NewStore()
	ctx := context.Background()
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	bookID, err := store.InsertBook(ctx, lending.Book{Title: "Thinking, Fast and Slow"})
	require.NoError(t, err)

	// act + assert
	txErr := store.WithinTx(ctx, func(tx lending.Tx) error {
		first, markErr := tx.MarkBookBorrowed(ctx, bookID, "21CSE01234", day, day.AddDate(0, 0, 14))
		require.NoError(t, markErr)
		assert.True(t, first)

		second, markErr := tx.MarkBookBorrowed(ctx, bookID, "20ECE04321", day, day.AddDate(0, 0, 14))
		require.NoError(t, markErr)
		assert.False(t, second)

		missing, markErr := tx.MarkBookBorrowed(ctx, 999, "21CSE01234", day, day.AddDate(0, 0, 14))
		require.NoError(t, markErr)
		assert.False(t, missing)

		return nil
	})
	require.NoError(t, txErr)
}

func Test_InsertStudent_ReportsCreation_AndKeepsFirstRecord(t *testing.T) {
	// arrange
	store := memoryengine.NewStore()
	ctx := context.Background()

	// act
	first, created, err := store.InsertStudent(ctx, lending.Student{UID: "21CSE01234", Name: "Ada"})
	require.NoError(t, err)

	second, createdAgain, err := store.InsertStudent(ctx, lending.Student{UID: "21CSE01234", Name: "Grace"})
	require.NoError(t, err)

	// assert
	assert.True(t, created)
	assert.False(t, createdAgain)
	assert.Equal(t, "Ada", second.Name)
	assert.Equal(t, first.Seq, second.Seq)
}

func Test_CloseLoan_ClosesOnlyTheOpenRecord(t *testing.T) {
	// arrange
	store := memoryengine.NewStore()
	ctx := context.Background()
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	txErr := store.WithinTx(ctx, func(tx lending.Tx) error {
		return tx.AppendLoan(ctx, lending.BuildOpenLoan("21CSE01234", 1, day))
	})
	require.NoError(t, txErr)

	// act
	txErr = store.WithinTx(ctx, func(tx lending.Tx) error {
		closed, closeErr := tx.CloseLoan(ctx, "21CSE01234", 1, day)
		require.NoError(t, closeErr)
		assert.True(t, closed)

		// a second close finds no open record
		closedAgain, closeErr := tx.CloseLoan(ctx, "21CSE01234", 1, day)
		require.NoError(t, closeErr)
		assert.False(t, closedAgain)

		return nil
	})
	require.NoError(t, txErr)

	// assert
	loans, loansErr := store.LoansByStudent(ctx, "21CSE01234")
	require.NoError(t, loansErr)
	require.Len(t, loans, 1)
	assert.Equal(t, lending.LoanStatusReturned, loans[0].Status)
}

func Test_DeleteBook_KeepsLoanHistory(t *testing.T) {
	// arrange
	store := memoryengine.NewStore()
	ctx := context.Background()
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	bookID, err := store.InsertBook(ctx, lending.Book{Title: "Ephemeral"})
	require.NoError(t, err)

	txErr := store.WithinTx(ctx, func(tx lending.Tx) error {
		return tx.AppendLoan(ctx, lending.BuildOpenLoan("21CSE01234", bookID, day))
	})
	require.NoError(t, txErr)

	// act
	require.NoError(t, store.DeleteBook(ctx, bookID))

	// assert
	loans, loansErr := store.LoansByStudent(ctx, "21CSE01234")
	require.NoError(t, loansErr)
	assert.Len(t, loans, 1)
}
