// Package memoryengine provides an in-memory lending.Storage, so the
// lending Engine can be exercised without a database.
//
// A single store-level mutex gives every unit of work mutual exclusion,
// which is a coarser guarantee than the per-book locking of the SQL
// engines but satisfies the same atomicity contract. Units of work operate
// on a copy of the state and commit by swapping it in, so a failing unit
// leaves no partial mutations behind.
package memoryengine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campuslib/lending-engine-go/lending"
	"github.com/campuslib/lending-engine-go/lending/rewards"
)

// Store is an in-memory implementation of lending.Storage.
// The zero value is not usable; create instances with NewStore.
type Store struct {
	mu         sync.Mutex
	state      *state
	nextBookID lending.BookID
	nextSeq    int64
}

type state struct {
	books    map[lending.BookID]lending.Book
	students map[lending.StudentID]lending.Student
	loans    []lending.LoanRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: &state{
			books:    make(map[lending.BookID]lending.Book),
			students: make(map[lending.StudentID]lending.Student),
		},
	}
}

func (st *state) clone() *state {
	books := make(map[lending.BookID]lending.Book, len(st.books))
	for id, book := range st.books {
		books[id] = book
	}

	students := make(map[lending.StudentID]lending.Student, len(st.students))
	for uid, student := range st.students {
		students[uid] = student
	}

	loans := make([]lending.LoanRecord, len(st.loans))
	copy(loans, st.loans)

	return &state{books: books, students: students, loans: loans}
}

// WithinTx runs fn on a copy of the state under the store mutex and commits
// the copy only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx lending.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()

	if err := fn(&memTx{state: staged}); err != nil {
		return err
	}

	s.state = staged

	return nil
}

// InsertBook adds a catalog record and returns the assigned id.
func (s *Store) InsertBook(_ context.Context, book lending.Book) (lending.BookID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBookID++
	book.ID = s.nextBookID
	book.Available = true
	s.state.books[book.ID] = book

	return book.ID, nil
}

// DeleteBook removes a catalog record; borrowing history is retained.
func (s *Store) DeleteBook(_ context.Context, id lending.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.books[id]; !ok {
		return lending.ErrBookNotFound
	}

	delete(s.state.books, id)

	return nil
}

// GetBook loads a catalog record.
func (s *Store) GetBook(_ context.Context, id lending.BookID) (lending.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.state.books[id]
	if !ok {
		return lending.Book{}, lending.ErrBookNotFound
	}

	return book, nil
}

// SearchBooks performs a case-insensitive substring match over one field,
// ordered by title ascending.
func (s *Store) SearchBooks(_ context.Context, field lending.SearchFieldString, term string) ([]lending.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(term)
	matches := make([]lending.Book, 0)

	for _, book := range s.state.books {
		var haystack string

		switch field {
		case lending.SearchByAuthor:
			haystack = book.Author
		case lending.SearchByCategory:
			haystack = book.Category
		case lending.SearchByISBN:
			haystack = book.ISBN
		default:
			haystack = book.Title
		}

		if strings.Contains(strings.ToLower(haystack), needle) {
			matches = append(matches, book)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Title < matches[j].Title
	})

	return matches, nil
}

// GetStudent loads a roster record.
func (s *Store) GetStudent(_ context.Context, uid lending.StudentID) (lending.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	student, ok := s.state.students[uid]
	if !ok {
		return lending.Student{}, lending.ErrStudentNotFound
	}

	return student, nil
}

// InsertStudent adds a roster record if absent and reports whether one was
// created.
func (s *Store) InsertStudent(_ context.Context, student lending.Student) (lending.Student, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.state.students[student.UID]; ok {
		return existing, false, nil
	}

	s.nextSeq++
	student.Seq = s.nextSeq
	s.state.students[student.UID] = student

	return student, true, nil
}

// TopStudents returns up to limit students with points, ordered by points
// descending, ties broken by insertion sequence.
func (s *Store) TopStudents(_ context.Context, limit int) ([]lending.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]rewards.Entry, 0, len(s.state.students))
	for _, student := range s.state.students {
		entries = append(entries, rewards.Entry{
			UID:    student.UID.String(),
			Points: student.Points,
			Seq:    student.Seq,
		})
	}

	ranked := rewards.Rank(entries, limit)

	top := make([]lending.Student, 0, len(ranked))
	for _, entry := range ranked {
		top = append(top, s.state.students[lending.StudentID(entry.UID)])
	}

	return top, nil
}

// LoansByStudent returns one student's borrowing history, most recent
// borrow first.
func (s *Store) LoansByStudent(_ context.Context, uid lending.StudentID) ([]lending.LoanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]lending.LoanRecord, 0)

	for i := len(s.state.loans) - 1; i >= 0; i-- {
		if s.state.loans[i].StudentUID == uid {
			history = append(history, s.state.loans[i])
		}
	}

	return history, nil
}

// Stats returns aggregate catalog and roster counts.
func (s *Store) Stats(_ context.Context) (lending.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := lending.Stats{
		TotalBooks:    len(s.state.books),
		TotalStudents: len(s.state.students),
	}

	for _, book := range s.state.books {
		if book.Available {
			stats.AvailableBooks++
		} else {
			stats.BorrowedBooks++
		}
	}

	return stats, nil
}

// memTx is a unit of work over the staged state copy. The store mutex is
// held for its whole lifetime.
type memTx struct {
	state *state
}

func (t *memTx) GetBookForUpdate(_ context.Context, id lending.BookID) (lending.Book, error) {
	book, ok := t.state.books[id]
	if !ok {
		return lending.Book{}, lending.ErrBookNotFound
	}

	return book, nil
}

func (t *memTx) MarkBookBorrowed(
	_ context.Context,
	id lending.BookID,
	by lending.StudentID,
	borrowedAt time.Time,
	dueAt time.Time,
) (bool, error) {

	book, ok := t.state.books[id]
	if !ok || !book.Available {
		return false, nil
	}

	book.Available = false
	book.BorrowedBy = by
	book.BorrowedAt = borrowedAt
	book.DueAt = dueAt
	t.state.books[id] = book

	return true, nil
}

func (t *memTx) MarkBookReturned(_ context.Context, id lending.BookID, by lending.StudentID) (bool, error) {
	book, ok := t.state.books[id]
	if !ok || book.Available || book.BorrowedBy != by {
		return false, nil
	}

	book.Available = true
	book.BorrowedBy = ""
	book.BorrowedAt = time.Time{}
	book.DueAt = time.Time{}
	t.state.books[id] = book

	return true, nil
}

func (t *memTx) SetBookRating(_ context.Context, id lending.BookID, rating float64, ratingCount int) error {
	book, ok := t.state.books[id]
	if !ok {
		return lending.ErrBookNotFound
	}

	book.Rating = rating
	book.RatingCount = ratingCount
	t.state.books[id] = book

	return nil
}

func (t *memTx) GetStudent(_ context.Context, uid lending.StudentID) (lending.Student, error) {
	student, ok := t.state.students[uid]
	if !ok {
		return lending.Student{}, lending.ErrStudentNotFound
	}

	return student, nil
}

func (t *memTx) ApplyStudentDeltas(_ context.Context, uid lending.StudentID, points int, borrowed int, returned int) error {
	student, ok := t.state.students[uid]
	if !ok {
		return lending.ErrStudentNotFound
	}

	student.Points += points
	student.BooksBorrowed += borrowed
	student.BooksReturned += returned
	t.state.students[uid] = student

	return nil
}

func (t *memTx) AppendLoan(_ context.Context, record lending.LoanRecord) error {
	t.state.loans = append(t.state.loans, record)
	return nil
}

func (t *memTx) CloseLoan(_ context.Context, uid lending.StudentID, bookID lending.BookID, returnedAt time.Time) (bool, error) {
	for i := range t.state.loans {
		loan := t.state.loans[i]

		if loan.StudentUID == uid && loan.BookID == bookID && loan.IsOpen() {
			loan.Status = lending.LoanStatusReturned
			loan.ReturnedAt = returnedAt
			t.state.loans[i] = loan

			return true, nil
		}
	}

	return false, nil
}

func (t *memTx) HasLoan(_ context.Context, uid lending.StudentID, bookID lending.BookID) (bool, error) {
	for _, loan := range t.state.loans {
		if loan.StudentUID == uid && loan.BookID == bookID {
			return true, nil
		}
	}

	return false, nil
}
