package lending

import (
	"errors"
	"time"
)

// BookID identifies a single physical copy - one book id is one copy.
type BookID = int64

var ErrBookNotFound = errors.New("book not found")
var ErrStudentNotFound = errors.New("student not found")
var ErrBookUnavailable = errors.New("book is not available")
var ErrNotBorrowedByCaller = errors.New("book is not borrowed by this student")
var ErrInvalidRating = errors.New("rating must be an integer between 1 and 5")
var ErrInvalidStudentID = errors.New("student id does not match the required format")

var ErrNilDatabaseConnection = errors.New("nil database connection supplied")
var ErrEmptyTableName = errors.New("empty table name supplied")

var ErrBuildingQueryFailed = errors.New("building sql query failed")
var ErrQueryingStoreFailed = errors.New("querying the store failed")
var ErrExecutingStoreFailed = errors.New("executing the store mutation failed")
var ErrScanningDBRowFailed = errors.New("scanning database row failed")
var ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")
var ErrBeginningTxFailed = errors.New("beginning transaction failed")
var ErrCommittingTxFailed = errors.New("committing transaction failed")

// DateOf truncates a point in time to its calendar day in UTC.
// Borrow, due and return dates are kept at date precision.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
