package lending

import (
	"context"
	"time"
)

// Stats is an aggregate snapshot of the catalog and roster.
type Stats struct {
	TotalBooks     int
	AvailableBooks int
	BorrowedBooks  int
	TotalStudents  int
}

// Tx is one atomic unit of work across the catalog, the roster and the
// borrowing history. The Engine acquires a Tx for the duration of every
// mutating operation; either all of its mutations take effect or none do.
//
// The Mark* methods are conditional updates (compare-and-swap on the book
// row): they report false - without error - when the precondition embedded
// in the update did not hold, so the caller can fail fast with the matching
// domain error.
type Tx interface {
	// GetBookForUpdate loads a book and takes the per-book exclusive lock
	// for the remainder of the unit of work. Returns ErrBookNotFound.
	GetBookForUpdate(ctx context.Context, id BookID) (Book, error)

	// MarkBookBorrowed flips an available book to borrowed and stamps the
	// borrower and dates. False when the book is missing or already
	// borrowed.
	MarkBookBorrowed(ctx context.Context, id BookID, by StudentID, borrowedAt time.Time, dueAt time.Time) (bool, error)

	// MarkBookReturned flips a book back to available iff it is currently
	// borrowed by the given student, clearing borrower and dates. False
	// when no such borrow exists.
	MarkBookReturned(ctx context.Context, id BookID, by StudentID) (bool, error)

	// SetBookRating stores a recomputed running average and count.
	SetBookRating(ctx context.Context, id BookID, rating float64, ratingCount int) error

	// GetStudent loads a roster record. Returns ErrStudentNotFound.
	GetStudent(ctx context.Context, uid StudentID) (Student, error)

	// ApplyStudentDeltas applies commutative increments to a student's
	// points and loan counters. Deltas are never negative.
	ApplyStudentDeltas(ctx context.Context, uid StudentID, points int, borrowed int, returned int) error

	// AppendLoan appends an open record to the borrowing history.
	AppendLoan(ctx context.Context, record LoanRecord) error

	// CloseLoan closes the single open history record for the (student,
	// book) pair, stamping the return date. False when no open record
	// exists.
	CloseLoan(ctx context.Context, uid StudentID, bookID BookID, returnedAt time.Time) (bool, error)

	// HasLoan reports whether any history record - open or returned -
	// exists for the (student, book) pair.
	HasLoan(ctx context.Context, uid StudentID, bookID BookID) (bool, error)
}

// Storage is the persistence capability injected into the Engine.
//
// WithinTx runs fn inside one unit of work; a non-nil error from fn rolls
// every mutation back. The remaining methods are single-statement reads and
// catalog/roster lifecycle operations that need no surrounding transaction.
type Storage interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// InsertBook adds a catalog record and returns the assigned id.
	InsertBook(ctx context.Context, book Book) (BookID, error)

	// DeleteBook removes a catalog record. Borrowing history referencing
	// the id is retained. Returns ErrBookNotFound for an unknown id.
	DeleteBook(ctx context.Context, id BookID) error

	// GetBook loads a catalog record. Returns ErrBookNotFound.
	GetBook(ctx context.Context, id BookID) (Book, error)

	// SearchBooks performs a case-insensitive substring match over exactly
	// one field, results ordered by title ascending.
	SearchBooks(ctx context.Context, field SearchFieldString, term string) ([]Book, error)

	// GetStudent loads a roster record. Returns ErrStudentNotFound.
	GetStudent(ctx context.Context, uid StudentID) (Student, error)

	// InsertStudent adds a roster record if the UID is absent, assigning
	// the insertion sequence, and reports whether a record was created.
	// When the UID already exists the stored record is returned unchanged,
	// so concurrent first logins are safe.
	InsertStudent(ctx context.Context, student Student) (Student, bool, error)

	// TopStudents returns up to limit students with points > 0, ordered
	// by points descending, ties broken by insertion sequence.
	TopStudents(ctx context.Context, limit int) ([]Student, error)

	// LoansByStudent returns the full borrowing history of one student,
	// most recent borrow first.
	LoansByStudent(ctx context.Context, uid StudentID) ([]LoanRecord, error)

	// Stats returns aggregate catalog and roster counts.
	Stats(ctx context.Context) (Stats, error)
}
