package sqliteengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/campuslib/lending-engine-go/lending"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	isbn TEXT UNIQUE,
	year INTEGER,
	category TEXT,
	available INTEGER NOT NULL DEFAULT 1,
	borrowed_by TEXT,
	borrowed_at TIMESTAMP,
	due_at TIMESTAMP,
	rating REAL NOT NULL DEFAULT 0,
	rating_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS students (
	uid TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	department TEXT,
	year INTEGER,
	points INTEGER NOT NULL DEFAULT 0,
	books_borrowed INTEGER NOT NULL DEFAULT 0,
	books_returned INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS loans (
	id TEXT PRIMARY KEY,
	student_uid TEXT NOT NULL,
	book_id INTEGER NOT NULL,
	borrowed_at TIMESTAMP NOT NULL,
	returned_at TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'borrowed'
);

CREATE INDEX IF NOT EXISTS idx_loans_student ON loans (student_uid, borrowed_at);
`

const (
	selectBookSQL = `SELECT id, title, author, isbn, year, category, available,
		borrowed_by, borrowed_at, due_at, rating, rating_count FROM books`

	// rowid doubles as insertion sequence for leaderboard tie-breaking.
	selectStudentSQL = `SELECT uid, name, department, year, points,
		books_borrowed, books_returned, rowid FROM students`

	selectLoanSQL = `SELECT id, student_uid, book_id, borrowed_at, returned_at, status FROM loans`
)

// Store is the SQLite implementation of lending.Storage.
type Store struct {
	db     *sql.DB
	logger lending.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger used for warnings on rollback and close
// failures.
func WithLogger(logger lending.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// Open opens (or creates) the database file at path, applies the schema and
// returns a ready Store. The DSN forces immediate transactions so write
// transactions take the database lock up front. Callers own the store and
// release it with Close.
func Open(path string, options ...Option) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", path)

	db, openErr := sql.Open("sqlite3", dsn)
	if openErr != nil {
		return Store{}, openErr
	}

	// sqlite3 handles one writer at a time; more connections only add
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	store, newErr := NewStore(db, options...)
	if newErr != nil {
		_ = db.Close()
		return Store{}, newErr
	}

	if _, schemaErr := db.Exec(schemaSQL); schemaErr != nil {
		_ = db.Close()
		return Store{}, errors.Join(lending.ErrExecutingStoreFailed, schemaErr)
	}

	return store, nil
}

// Close releases the underlying database handle.
func (s Store) Close() error {
	return s.db.Close()
}

// NewStore wraps an already opened sqlite database. The schema is assumed
// to exist.
func NewStore(db *sql.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, lending.ErrNilDatabaseConnection
	}

	store := Store{db: db}

	for _, option := range options {
		if err := option(&store); err != nil {
			return Store{}, err
		}
	}

	return store, nil
}

// WithinTx runs fn inside one immediate transaction. A non-nil error from
// fn rolls back and is returned unchanged.
func (s Store) WithinTx(ctx context.Context, fn func(tx lending.Tx) error) error {
	dbTx, beginErr := s.db.BeginTx(ctx, nil)
	if beginErr != nil {
		return errors.Join(lending.ErrBeginningTxFailed, beginErr)
	}

	if fnErr := fn(&storeTx{tx: dbTx}); fnErr != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			s.logWarn("failed to roll back transaction", "error", rbErr.Error())
		}

		return fnErr
	}

	if commitErr := dbTx.Commit(); commitErr != nil {
		return errors.Join(lending.ErrCommittingTxFailed, commitErr)
	}

	return nil
}

// InsertBook adds a catalog record and returns the assigned id.
func (s Store) InsertBook(ctx context.Context, book lending.Book) (lending.BookID, error) {
	result, execErr := s.db.ExecContext(ctx,
		`INSERT INTO books (title, author, isbn, year, category, available) VALUES (?, ?, ?, ?, ?, 1)`,
		book.Title, book.Author, nullableString(book.ISBN), book.Year, book.Category,
	)
	if execErr != nil {
		return 0, errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	id, idErr := result.LastInsertId()
	if idErr != nil {
		return 0, errors.Join(lending.ErrExecutingStoreFailed, idErr)
	}

	return id, nil
}

// DeleteBook removes a catalog record; loan history rows referencing the id
// are retained.
func (s Store) DeleteBook(ctx context.Context, id lending.BookID) error {
	result, execErr := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if execErr != nil {
		return errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return errors.Join(lending.ErrGettingRowsAffectedFailed, rowsErr)
	}

	if rowsAffected == 0 {
		return lending.ErrBookNotFound
	}

	return nil
}

// GetBook loads a catalog record.
func (s Store) GetBook(ctx context.Context, id lending.BookID) (lending.Book, error) {
	return scanBook(s.db.QueryRowContext(ctx, selectBookSQL+` WHERE id = ?`, id))
}

// SearchBooks performs a case-insensitive substring match over one field,
// ordered by title ascending. SQLite's LIKE is case-insensitive for ASCII
// by default.
func (s Store) SearchBooks(ctx context.Context, field lending.SearchFieldString, term string) ([]lending.Book, error) {
	column := "title"

	switch field {
	case lending.SearchByAuthor:
		column = "author"
	case lending.SearchByCategory:
		column = "category"
	case lending.SearchByISBN:
		column = "isbn"
	}

	query := fmt.Sprintf(`%s WHERE %s LIKE ? ORDER BY title ASC`, selectBookSQL, column)

	rows, queryErr := s.db.QueryContext(ctx, query, "%"+term+"%")
	if queryErr != nil {
		return nil, errors.Join(lending.ErrQueryingStoreFailed, queryErr)
	}
	defer s.closeRows(rows)

	books := make([]lending.Book, 0)

	for rows.Next() {
		book, scanErr := scanBook(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		books = append(books, book)
	}

	return books, rows.Err()
}

// GetStudent loads a roster record.
func (s Store) GetStudent(ctx context.Context, uid lending.StudentID) (lending.Student, error) {
	return scanStudent(s.db.QueryRowContext(ctx, selectStudentSQL+` WHERE uid = ?`, uid.String()))
}

// InsertStudent adds a roster record if the UID is absent and reports
// whether one was created.
func (s Store) InsertStudent(ctx context.Context, student lending.Student) (lending.Student, bool, error) {
	result, execErr := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO students (uid, name, department, year) VALUES (?, ?, ?, ?)`,
		student.UID.String(), student.Name, student.Department, student.Year,
	)
	if execErr != nil {
		return lending.Student{}, false, errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return lending.Student{}, false, errors.Join(lending.ErrGettingRowsAffectedFailed, rowsErr)
	}

	stored, getErr := s.GetStudent(ctx, student.UID)
	if getErr != nil {
		return lending.Student{}, false, getErr
	}

	return stored, rowsAffected > 0, nil
}

// TopStudents returns up to limit students with points, ordered by points
// descending, ties broken by insertion order.
func (s Store) TopStudents(ctx context.Context, limit int) ([]lending.Student, error) {
	query := selectStudentSQL + ` WHERE points > 0 ORDER BY points DESC, rowid ASC LIMIT ?`

	rows, queryErr := s.db.QueryContext(ctx, query, limit)
	if queryErr != nil {
		return nil, errors.Join(lending.ErrQueryingStoreFailed, queryErr)
	}
	defer s.closeRows(rows)

	students := make([]lending.Student, 0)

	for rows.Next() {
		student, scanErr := scanStudent(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		students = append(students, student)
	}

	return students, rows.Err()
}

// LoansByStudent returns one student's borrowing history, most recent
// borrow first.
func (s Store) LoansByStudent(ctx context.Context, uid lending.StudentID) ([]lending.LoanRecord, error) {
	query := selectLoanSQL + ` WHERE student_uid = ? ORDER BY borrowed_at DESC`

	rows, queryErr := s.db.QueryContext(ctx, query, uid.String())
	if queryErr != nil {
		return nil, errors.Join(lending.ErrQueryingStoreFailed, queryErr)
	}
	defer s.closeRows(rows)

	loans := make([]lending.LoanRecord, 0)

	for rows.Next() {
		loan, scanErr := scanLoan(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		loans = append(loans, loan)
	}

	return loans, rows.Err()
}

// Stats returns aggregate catalog and roster counts.
func (s Store) Stats(ctx context.Context) (lending.Stats, error) {
	var stats lending.Stats

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(available), 0) FROM books`)
	if scanErr := row.Scan(&stats.TotalBooks, &stats.AvailableBooks); scanErr != nil {
		return lending.Stats{}, errors.Join(lending.ErrScanningDBRowFailed, scanErr)
	}

	stats.BorrowedBooks = stats.TotalBooks - stats.AvailableBooks

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`)
	if scanErr := row.Scan(&stats.TotalStudents); scanErr != nil {
		return lending.Stats{}, errors.Join(lending.ErrScanningDBRowFailed, scanErr)
	}

	return stats, nil
}

// storeTx is one unit of work on an open immediate transaction.
type storeTx struct {
	tx *sql.Tx
}

// GetBookForUpdate loads a book inside the transaction. SQLite locks the
// whole database for the writer, so no row-level FOR UPDATE is needed.
func (t *storeTx) GetBookForUpdate(ctx context.Context, id lending.BookID) (lending.Book, error) {
	return scanBook(t.tx.QueryRowContext(ctx, selectBookSQL+` WHERE id = ?`, id))
}

// MarkBookBorrowed is the conditional update that decides a borrow: zero
// rows affected means the book is missing or already lent.
func (t *storeTx) MarkBookBorrowed(
	ctx context.Context,
	id lending.BookID,
	by lending.StudentID,
	borrowedAt time.Time,
	dueAt time.Time,
) (bool, error) {

	result, execErr := t.tx.ExecContext(ctx,
		`UPDATE books SET available = 0, borrowed_by = ?, borrowed_at = ?, due_at = ?
		 WHERE id = ? AND available = 1`,
		by.String(), borrowedAt, dueAt, id,
	)
	if execErr != nil {
		return false, errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	return affectedRows(result)
}

// MarkBookReturned is the conditional update that decides a return: zero
// rows affected means the book is not currently borrowed by this student.
func (t *storeTx) MarkBookReturned(ctx context.Context, id lending.BookID, by lending.StudentID) (bool, error) {
	result, execErr := t.tx.ExecContext(ctx,
		`UPDATE books SET available = 1, borrowed_by = NULL, borrowed_at = NULL, due_at = NULL
		 WHERE id = ? AND available = 0 AND borrowed_by = ?`,
		id, by.String(),
	)
	if execErr != nil {
		return false, errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	return affectedRows(result)
}

// SetBookRating stores a recomputed running average and count.
func (t *storeTx) SetBookRating(ctx context.Context, id lending.BookID, rating float64, ratingCount int) error {
	result, execErr := t.tx.ExecContext(ctx,
		`UPDATE books SET rating = ?, rating_count = ? WHERE id = ?`,
		rating, ratingCount, id,
	)
	if execErr != nil {
		return errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	ok, affectedErr := affectedRows(result)
	if affectedErr != nil {
		return affectedErr
	}

	if !ok {
		return lending.ErrBookNotFound
	}

	return nil
}

func (t *storeTx) GetStudent(ctx context.Context, uid lending.StudentID) (lending.Student, error) {
	return scanStudent(t.tx.QueryRowContext(ctx, selectStudentSQL+` WHERE uid = ?`, uid.String()))
}

// ApplyStudentDeltas applies commutative increments to points and counters.
func (t *storeTx) ApplyStudentDeltas(ctx context.Context, uid lending.StudentID, points int, borrowed int, returned int) error {
	result, execErr := t.tx.ExecContext(ctx,
		`UPDATE students SET points = points + ?, books_borrowed = books_borrowed + ?,
		 books_returned = books_returned + ? WHERE uid = ?`,
		points, borrowed, returned, uid.String(),
	)
	if execErr != nil {
		return errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	ok, affectedErr := affectedRows(result)
	if affectedErr != nil {
		return affectedErr
	}

	if !ok {
		return lending.ErrStudentNotFound
	}

	return nil
}

// AppendLoan appends an open record to the borrowing history.
func (t *storeTx) AppendLoan(ctx context.Context, record lending.LoanRecord) error {
	_, execErr := t.tx.ExecContext(ctx,
		`INSERT INTO loans (id, student_uid, book_id, borrowed_at, status) VALUES (?, ?, ?, ?, ?)`,
		record.ID.String(), record.StudentUID.String(), record.BookID, record.BorrowedAt, record.Status,
	)
	if execErr != nil {
		return errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	return nil
}

// CloseLoan closes the open history record for the (student, book) pair.
func (t *storeTx) CloseLoan(ctx context.Context, uid lending.StudentID, bookID lending.BookID, returnedAt time.Time) (bool, error) {
	result, execErr := t.tx.ExecContext(ctx,
		`UPDATE loans SET status = ?, returned_at = ?
		 WHERE student_uid = ? AND book_id = ? AND status = ?`,
		lending.LoanStatusReturned, returnedAt, uid.String(), bookID, lending.LoanStatusBorrowed,
	)
	if execErr != nil {
		return false, errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	return affectedRows(result)
}

// HasLoan reports whether any history record exists for the pair.
func (t *storeTx) HasLoan(ctx context.Context, uid lending.StudentID, bookID lending.BookID) (bool, error) {
	var one int

	scanErr := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM loans WHERE student_uid = ? AND book_id = ? LIMIT 1`,
		uid.String(), bookID,
	).Scan(&one)

	if errors.Is(scanErr, sql.ErrNoRows) {
		return false, nil
	}

	if scanErr != nil {
		return false, errors.Join(lending.ErrQueryingStoreFailed, scanErr)
	}

	return true, nil
}

// rowScanner covers sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (lending.Book, error) {
	var book lending.Book
	var isbn, borrowedBy sql.NullString
	var borrowedAt, dueAt sql.NullTime

	scanErr := row.Scan(
		&book.ID, &book.Title, &book.Author, &isbn, &book.Year, &book.Category,
		&book.Available, &borrowedBy, &borrowedAt, &dueAt, &book.Rating, &book.RatingCount,
	)

	if errors.Is(scanErr, sql.ErrNoRows) {
		return lending.Book{}, lending.ErrBookNotFound
	}

	if scanErr != nil {
		return lending.Book{}, errors.Join(lending.ErrScanningDBRowFailed, scanErr)
	}

	book.ISBN = isbn.String
	book.BorrowedBy = lending.StudentID(borrowedBy.String)

	if borrowedAt.Valid {
		book.BorrowedAt = borrowedAt.Time.UTC()
	}

	if dueAt.Valid {
		book.DueAt = dueAt.Time.UTC()
	}

	return book, nil
}

func scanStudent(row rowScanner) (lending.Student, error) {
	var student lending.Student
	var uid string

	scanErr := row.Scan(
		&uid, &student.Name, &student.Department, &student.Year,
		&student.Points, &student.BooksBorrowed, &student.BooksReturned, &student.Seq,
	)

	if errors.Is(scanErr, sql.ErrNoRows) {
		return lending.Student{}, lending.ErrStudentNotFound
	}

	if scanErr != nil {
		return lending.Student{}, errors.Join(lending.ErrScanningDBRowFailed, scanErr)
	}

	student.UID = lending.StudentID(uid)

	return student, nil
}

func scanLoan(row rowScanner) (lending.LoanRecord, error) {
	var loan lending.LoanRecord
	var id, uid string
	var returnedAt sql.NullTime

	scanErr := row.Scan(&id, &uid, &loan.BookID, &loan.BorrowedAt, &returnedAt, &loan.Status)
	if scanErr != nil {
		return lending.LoanRecord{}, errors.Join(lending.ErrScanningDBRowFailed, scanErr)
	}

	parsedID, parseErr := uuid.Parse(id)
	if parseErr != nil {
		return lending.LoanRecord{}, errors.Join(lending.ErrScanningDBRowFailed, parseErr)
	}

	loan.ID = parsedID
	loan.StudentUID = lending.StudentID(uid)
	loan.BorrowedAt = loan.BorrowedAt.UTC()

	if returnedAt.Valid {
		loan.ReturnedAt = returnedAt.Time.UTC()
	}

	return loan, nil
}

func affectedRows(result sql.Result) (bool, error) {
	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return false, errors.Join(lending.ErrGettingRowsAffectedFailed, rowsErr)
	}

	return rowsAffected > 0, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}

	return value
}

func (s Store) closeRows(rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn("failed to close database rows", "error", closeErr.Error())
	}
}

func (s Store) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
