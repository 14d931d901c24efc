package lending

import (
	"errors"
	"time"
)

// Book is the catalog record for one physical copy.
//
// The zero values of BorrowedBy, BorrowedAt and DueAt mean "not borrowed";
// the SQL engines map them to NULL columns.
type Book struct {
	ID          BookID
	Title       string
	Author      string
	ISBN        string
	Year        int
	Category    string
	Available   bool
	BorrowedBy  StudentID
	BorrowedAt  time.Time
	DueAt       time.Time
	Rating      float64
	RatingCount int
}

var ErrBookStateInconsistent = errors.New("book state violates the lending invariants")

// CheckInvariants verifies the structural invariants of a catalog record:
// available iff no borrower, due date set iff borrowed, and a zero rating
// count implies a zero rating.
func (b Book) CheckInvariants() error {
	if b.Available != (b.BorrowedBy == "") {
		return ErrBookStateInconsistent
	}

	if b.Available != b.DueAt.IsZero() || b.Available != b.BorrowedAt.IsZero() {
		return ErrBookStateInconsistent
	}

	if b.RatingCount == 0 && b.Rating != 0 {
		return ErrBookStateInconsistent
	}

	return nil
}
