package lending

import (
	"time"

	"github.com/google/uuid"
)

// LoanStatusString is a type alias for the lifecycle state of a loan record.
type LoanStatusString = string

const (
	LoanStatusBorrowed LoanStatusString = "borrowed"
	LoanStatusReturned LoanStatusString = "returned"
)

// LoanRecord is one entry of the append-only borrowing history.
//
// Records are created on borrow, closed on return and never deleted. They
// survive catalog deletes - a record may reference a book id that no longer
// exists, which is intentional (audit trail).
type LoanRecord struct {
	ID         uuid.UUID
	StudentUID StudentID
	BookID     BookID
	BorrowedAt time.Time
	ReturnedAt time.Time
	Status     LoanStatusString
}

// BuildOpenLoan is a factory method for the record appended when a borrow
// succeeds.
func BuildOpenLoan(studentUID StudentID, bookID BookID, borrowedAt time.Time) LoanRecord {
	return LoanRecord{
		ID:         uuid.New(),
		StudentUID: studentUID,
		BookID:     bookID,
		BorrowedAt: borrowedAt,
		Status:     LoanStatusBorrowed,
	}
}

// IsOpen reports whether the loan has not been returned yet.
func (l LoanRecord) IsOpen() bool {
	return l.Status == LoanStatusBorrowed
}
