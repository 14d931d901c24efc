package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/campuslib/lending-engine-go/lending"
	"github.com/campuslib/lending-engine-go/lending/postgresengine/internal/adapters"
)

const (
	defaultBooksTableName    = "books"
	defaultStudentsTableName = "students"
	defaultLoansTableName    = "loans"

	dialectPostgres = "postgres"

	colBookID      = "id"
	colTitle       = "title"
	colAuthor      = "author"
	colISBN        = "isbn"
	colYear        = "year"
	colCategory    = "category"
	colAvailable   = "available"
	colBorrowedBy  = "borrowed_by"
	colBorrowedAt  = "borrowed_at"
	colDueAt       = "due_at"
	colRating      = "rating"
	colRatingCount = "rating_count"

	colStudentUID    = "uid"
	colStudentName   = "name"
	colDepartment    = "department"
	colStudentYear   = "year"
	colPoints        = "points"
	colBooksBorrowed = "books_borrowed"
	colBooksReturned = "books_returned"
	colSeq           = "seq"

	colLoanID         = "id"
	colLoanStudentUID = "student_uid"
	colLoanBookID     = "book_id"
	colLoanBorrowedAt = "borrowed_at"
	colLoanReturnedAt = "returned_at"
	colLoanStatus     = "status"

	logMsgSQLExecuted        = "executed sql for: "
	logMsgRollbackFailed     = "failed to roll back transaction"
	logMsgDBQueryFailed      = "database query execution failed"
	logMsgDBExecFailed       = "database execution failed"
	logMsgScanRowFailed      = "failed to scan database row"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logAttrError      = "error"
	logAttrQuery      = "query"
	logAttrDurationMS = "duration_ms"

	exprLikeContains   = "%%%s%%"
	exprCountAvailable = "COUNT(*) FILTER (WHERE %s)"
)

// Store is the PostgreSQL implementation of lending.Storage. It leverages a
// database adapter and supports customizable logging and table names.
type Store struct {
	db            adapters.DBAdapter
	booksTable    string
	studentsTable string
	loansTable    string
	logger        lending.Logger
}

// dbRunner is the shared query surface of a plain connection and an open
// transaction.
type dbRunner interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

// NewStoreFromPGXPool creates a new Store using a pgx pool with optional
// configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional
// configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional
// configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(adapter adapters.DBAdapter, options ...Option) (Store, error) {
	store := Store{
		db:            adapter,
		booksTable:    defaultBooksTableName,
		studentsTable: defaultStudentsTableName,
		loansTable:    defaultLoansTableName,
	}

	for _, option := range options {
		if err := option(&store); err != nil {
			return Store{}, err
		}
	}

	return store, nil
}

// CreateSchema creates the catalog, roster and history tables if they do
// not exist. The history table has no foreign key on the catalog: loan
// records outlive book deletions.
func (s Store) CreateSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			isbn TEXT UNIQUE,
			year INT,
			category TEXT,
			available BOOLEAN NOT NULL DEFAULT TRUE,
			borrowed_by TEXT,
			borrowed_at TIMESTAMPTZ,
			due_at TIMESTAMPTZ,
			rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			rating_count INT NOT NULL DEFAULT 0
		)`, s.booksTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			department TEXT,
			year INT,
			points INT NOT NULL DEFAULT 0,
			books_borrowed INT NOT NULL DEFAULT 0,
			books_returned INT NOT NULL DEFAULT 0,
			seq BIGSERIAL
		)`, s.studentsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			student_uid TEXT NOT NULL,
			book_id BIGINT NOT NULL,
			borrowed_at TIMESTAMPTZ NOT NULL,
			returned_at TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'borrowed'
		)`, s.loansTable),
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(ctx, statement); err != nil {
			return errors.Join(lending.ErrExecutingStoreFailed, err)
		}
	}

	return nil
}

// WithinTx runs fn inside one database transaction. A non-nil error from fn
// rolls the transaction back and is returned unchanged, so domain errors
// pass through to the caller.
func (s Store) WithinTx(ctx context.Context, fn func(tx lending.Tx) error) error {
	dbTx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		return errors.Join(lending.ErrBeginningTxFailed, beginErr)
	}

	if fnErr := fn(&storeTx{store: s, db: dbTx}); fnErr != nil {
		if rbErr := dbTx.Rollback(ctx); rbErr != nil {
			s.logWarn(logMsgRollbackFailed, logAttrError, rbErr.Error())
		}

		return fnErr
	}

	if commitErr := dbTx.Commit(ctx); commitErr != nil {
		return errors.Join(lending.ErrCommittingTxFailed, commitErr)
	}

	return nil
}

/***** catalog *****/

// InsertBook adds a catalog record and returns the assigned id.
func (s Store) InsertBook(ctx context.Context, book lending.Book) (lending.BookID, error) {
	record := goqu.Record{
		colTitle:     book.Title,
		colAuthor:    book.Author,
		colISBN:      nullableString(book.ISBN),
		colYear:      book.Year,
		colCategory:  book.Category,
		colAvailable: true,
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(s.booksTable).
		Rows(record).
		Returning(colBookID).
		ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := s.executeQuery(ctx, s.db, sqlQuery)
	if err != nil {
		return 0, err
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return 0, lending.ErrQueryingStoreFailed
	}

	var id lending.BookID
	if scanErr := rows.Scan(&id); scanErr != nil {
		return 0, s.scanError(scanErr)
	}

	return id, nil
}

// DeleteBook removes a catalog record; history rows referencing the id are
// retained.
func (s Store) DeleteBook(ctx context.Context, id lending.BookID) error {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Delete(s.booksTable).
		Where(goqu.C(colBookID).Eq(id)).
		ToSQL()
	if toSQLErr != nil {
		return errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, err := s.executeMutation(ctx, s.db, sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return lending.ErrBookNotFound
	}

	return nil
}

// GetBook loads a catalog record.
func (s Store) GetBook(ctx context.Context, id lending.BookID) (lending.Book, error) {
	return s.getBook(ctx, s.db, id, false)
}

// SearchBooks performs a case-insensitive substring match over one field,
// ordered by title ascending.
func (s Store) SearchBooks(ctx context.Context, field lending.SearchFieldString, term string) ([]lending.Book, error) {
	column := colTitle

	switch field {
	case lending.SearchByAuthor:
		column = colAuthor
	case lending.SearchByCategory:
		column = colCategory
	case lending.SearchByISBN:
		column = colISBN
	}

	sqlQuery, _, toSQLErr := s.selectBooks().
		Where(goqu.C(column).ILike(fmt.Sprintf(exprLikeContains, term))).
		Order(goqu.I(colTitle).Asc()).
		ToSQL()
	if toSQLErr != nil {
		return nil, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := s.executeQuery(ctx, s.db, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(rows)

	books := make([]lending.Book, 0)

	for rows.Next() {
		book, scanErr := scanBook(rows)
		if scanErr != nil {
			return nil, s.scanError(scanErr)
		}

		books = append(books, book)
	}

	return books, nil
}

/***** roster *****/

// GetStudent loads a roster record.
func (s Store) GetStudent(ctx context.Context, uid lending.StudentID) (lending.Student, error) {
	return s.getStudent(ctx, s.db, uid)
}

// InsertStudent adds a roster record if the UID is absent and reports
// whether one was created. The insert is conflict-free, so concurrent
// first logins of the same student are safe.
func (s Store) InsertStudent(ctx context.Context, student lending.Student) (lending.Student, bool, error) {
	record := goqu.Record{
		colStudentUID:  student.UID.String(),
		colStudentName: student.Name,
		colDepartment:  student.Department,
		colStudentYear: student.Year,
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(s.studentsTable).
		Rows(record).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if toSQLErr != nil {
		return lending.Student{}, false, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, err := s.executeMutation(ctx, s.db, sqlQuery)
	if err != nil {
		return lending.Student{}, false, err
	}

	stored, getErr := s.getStudent(ctx, s.db, student.UID)
	if getErr != nil {
		return lending.Student{}, false, getErr
	}

	return stored, rowsAffected > 0, nil
}

// TopStudents returns up to limit students with points, ordered by points
// descending, ties broken by insertion sequence.
func (s Store) TopStudents(ctx context.Context, limit int) ([]lending.Student, error) {
	sqlQuery, _, toSQLErr := s.selectStudents().
		Where(goqu.C(colPoints).Gt(0)).
		Order(goqu.I(colPoints).Desc(), goqu.I(colSeq).Asc()).
		Limit(uint(limit)).
		ToSQL()
	if toSQLErr != nil {
		return nil, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := s.executeQuery(ctx, s.db, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(rows)

	students := make([]lending.Student, 0)

	for rows.Next() {
		student, scanErr := scanStudent(rows)
		if scanErr != nil {
			return nil, s.scanError(scanErr)
		}

		students = append(students, student)
	}

	return students, nil
}

/***** history *****/

// LoansByStudent returns one student's borrowing history, most recent
// borrow first.
func (s Store) LoansByStudent(ctx context.Context, uid lending.StudentID) ([]lending.LoanRecord, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(s.loansTable).
		Select(colLoanID, colLoanStudentUID, colLoanBookID, colLoanBorrowedAt, colLoanReturnedAt, colLoanStatus).
		Where(goqu.C(colLoanStudentUID).Eq(uid.String())).
		Order(goqu.I(colLoanBorrowedAt).Desc()).
		ToSQL()
	if toSQLErr != nil {
		return nil, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := s.executeQuery(ctx, s.db, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(rows)

	loans := make([]lending.LoanRecord, 0)

	for rows.Next() {
		loan, scanErr := scanLoan(rows)
		if scanErr != nil {
			return nil, s.scanError(scanErr)
		}

		loans = append(loans, loan)
	}

	return loans, nil
}

// Stats returns aggregate catalog and roster counts.
func (s Store) Stats(ctx context.Context) (lending.Stats, error) {
	booksQuery, _, booksErr := goqu.Dialect(dialectPostgres).
		From(s.booksTable).
		Select(
			goqu.COUNT(goqu.Star()),
			goqu.L(fmt.Sprintf(exprCountAvailable, colAvailable)),
		).
		ToSQL()
	if booksErr != nil {
		return lending.Stats{}, errors.Join(lending.ErrBuildingQueryFailed, booksErr)
	}

	var stats lending.Stats

	rows, err := s.executeQuery(ctx, s.db, booksQuery)
	if err != nil {
		return lending.Stats{}, err
	}

	if rows.Next() {
		if scanErr := rows.Scan(&stats.TotalBooks, &stats.AvailableBooks); scanErr != nil {
			s.closeRows(rows)
			return lending.Stats{}, s.scanError(scanErr)
		}
	}
	s.closeRows(rows)

	stats.BorrowedBooks = stats.TotalBooks - stats.AvailableBooks

	studentsQuery, _, studentsErr := goqu.Dialect(dialectPostgres).
		From(s.studentsTable).
		Select(goqu.COUNT(goqu.Star())).
		ToSQL()
	if studentsErr != nil {
		return lending.Stats{}, errors.Join(lending.ErrBuildingQueryFailed, studentsErr)
	}

	rows, err = s.executeQuery(ctx, s.db, studentsQuery)
	if err != nil {
		return lending.Stats{}, err
	}
	defer s.closeRows(rows)

	if rows.Next() {
		if scanErr := rows.Scan(&stats.TotalStudents); scanErr != nil {
			return lending.Stats{}, s.scanError(scanErr)
		}
	}

	return stats, nil
}

/***** unit of work *****/

// storeTx is one unit of work; it reuses the Store's query builders against
// the open transaction handle.
type storeTx struct {
	store Store
	db    adapters.DBTx
}

// GetBookForUpdate loads a book and takes its row lock for the remainder of
// the transaction.
func (t *storeTx) GetBookForUpdate(ctx context.Context, id lending.BookID) (lending.Book, error) {
	return t.store.getBook(ctx, t.db, id, true)
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

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(t.store.booksTable).
		Set(goqu.Record{
			colAvailable:  false,
			colBorrowedBy: by.String(),
			colBorrowedAt: borrowedAt,
			colDueAt:      dueAt,
		}).
		Where(goqu.C(colBookID).Eq(id), goqu.C(colAvailable).IsTrue()).
		ToSQL()
	if toSQLErr != nil {
		return false, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, err := t.store.executeMutation(ctx, t.db, sqlQuery)
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// MarkBookReturned is the conditional update that decides a return: zero
// rows affected means the book is not currently borrowed by this student.
func (t *storeTx) MarkBookReturned(ctx context.Context, id lending.BookID, by lending.StudentID) (bool, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(t.store.booksTable).
		Set(goqu.Record{
			colAvailable:  true,
			colBorrowedBy: nil,
			colBorrowedAt: nil,
			colDueAt:      nil,
		}).
		Where(
			goqu.C(colBookID).Eq(id),
			goqu.C(colAvailable).IsFalse(),
			goqu.C(colBorrowedBy).Eq(by.String()),
		).
		ToSQL()
	if toSQLErr != nil {
		return false, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, err := t.store.executeMutation(ctx, t.db, sqlQuery)
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// SetBookRating stores a recomputed running average and count.
func (t *storeTx) SetBookRating(ctx context.Context, id lending.BookID, rating float64, ratingCount int) error {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(t.store.booksTable).
		Set(goqu.Record{
			colRating:      rating,
			colRatingCount: ratingCount,
		}).
		Where(goqu.C(colBookID).Eq(id)).
		ToSQL()
	if toSQLErr != nil {
		return errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, err := t.store.executeMutation(ctx, t.db, sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return lending.ErrBookNotFound
	}

	return nil
}

// GetStudent loads a roster record inside the transaction.
func (t *storeTx) GetStudent(ctx context.Context, uid lending.StudentID) (lending.Student, error) {
	return t.store.getStudent(ctx, t.db, uid)
}

// ApplyStudentDeltas applies commutative increments to points and counters.
func (t *storeTx) ApplyStudentDeltas(ctx context.Context, uid lending.StudentID, points int, borrowed int, returned int) error {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(t.store.studentsTable).
		Set(goqu.Record{
			colPoints:        goqu.L(fmt.Sprintf("%s + ?", colPoints), points),
			colBooksBorrowed: goqu.L(fmt.Sprintf("%s + ?", colBooksBorrowed), borrowed),
			colBooksReturned: goqu.L(fmt.Sprintf("%s + ?", colBooksReturned), returned),
		}).
		Where(goqu.C(colStudentUID).Eq(uid.String())).
		ToSQL()
	if toSQLErr != nil {
		return errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, err := t.store.executeMutation(ctx, t.db, sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return lending.ErrStudentNotFound
	}

	return nil
}

// AppendLoan appends an open record to the borrowing history.
func (t *storeTx) AppendLoan(ctx context.Context, record lending.LoanRecord) error {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(t.store.loansTable).
		Rows(goqu.Record{
			colLoanID:         record.ID.String(),
			colLoanStudentUID: record.StudentUID.String(),
			colLoanBookID:     record.BookID,
			colLoanBorrowedAt: record.BorrowedAt,
			colLoanStatus:     record.Status,
		}).
		ToSQL()
	if toSQLErr != nil {
		return errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	if _, err := t.store.executeMutation(ctx, t.db, sqlQuery); err != nil {
		return err
	}

	return nil
}

// CloseLoan closes the open history record for the (student, book) pair.
func (t *storeTx) CloseLoan(ctx context.Context, uid lending.StudentID, bookID lending.BookID, returnedAt time.Time) (bool, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(t.store.loansTable).
		Set(goqu.Record{
			colLoanStatus:     lending.LoanStatusReturned,
			colLoanReturnedAt: returnedAt,
		}).
		Where(
			goqu.C(colLoanStudentUID).Eq(uid.String()),
			goqu.C(colLoanBookID).Eq(bookID),
			goqu.C(colLoanStatus).Eq(lending.LoanStatusBorrowed),
		).
		ToSQL()
	if toSQLErr != nil {
		return false, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, err := t.store.executeMutation(ctx, t.db, sqlQuery)
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// HasLoan reports whether any history record exists for the pair.
func (t *storeTx) HasLoan(ctx context.Context, uid lending.StudentID, bookID lending.BookID) (bool, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(t.store.loansTable).
		Select(goqu.V(1)).
		Where(
			goqu.C(colLoanStudentUID).Eq(uid.String()),
			goqu.C(colLoanBookID).Eq(bookID),
		).
		Limit(1).
		ToSQL()
	if toSQLErr != nil {
		return false, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := t.store.executeQuery(ctx, t.db, sqlQuery)
	if err != nil {
		return false, err
	}
	defer t.store.closeRows(rows)

	return rows.Next(), nil
}

/***** shared internals *****/

func (s Store) selectBooks() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(s.booksTable).
		Select(
			colBookID, colTitle, colAuthor, colISBN, colYear, colCategory,
			colAvailable, colBorrowedBy, colBorrowedAt, colDueAt, colRating, colRatingCount,
		)
}

func (s Store) selectStudents() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(s.studentsTable).
		Select(
			colStudentUID, colStudentName, colDepartment, colStudentYear,
			colPoints, colBooksBorrowed, colBooksReturned, colSeq,
		)
}

func (s Store) getBook(ctx context.Context, runner dbRunner, id lending.BookID, forUpdate bool) (lending.Book, error) {
	selectStmt := s.selectBooks().Where(goqu.C(colBookID).Eq(id))

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return lending.Book{}, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := s.executeQuery(ctx, runner, sqlQuery)
	if err != nil {
		return lending.Book{}, err
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return lending.Book{}, lending.ErrBookNotFound
	}

	book, scanErr := scanBook(rows)
	if scanErr != nil {
		return lending.Book{}, s.scanError(scanErr)
	}

	return book, nil
}

func (s Store) getStudent(ctx context.Context, runner dbRunner, uid lending.StudentID) (lending.Student, error) {
	sqlQuery, _, toSQLErr := s.selectStudents().
		Where(goqu.C(colStudentUID).Eq(uid.String())).
		ToSQL()
	if toSQLErr != nil {
		return lending.Student{}, errors.Join(lending.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := s.executeQuery(ctx, runner, sqlQuery)
	if err != nil {
		return lending.Student{}, err
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return lending.Student{}, lending.ErrStudentNotFound
	}

	student, scanErr := scanStudent(rows)
	if scanErr != nil {
		return lending.Student{}, s.scanError(scanErr)
	}

	return student, nil
}

func (s Store) executeQuery(ctx context.Context, runner dbRunner, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := runner.Query(ctx, sqlQuery)
	s.logQueryWithDuration(sqlQuery, time.Since(start))

	if queryErr != nil {
		s.logError(logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		return nil, errors.Join(lending.ErrQueryingStoreFailed, queryErr)
	}

	return rows, nil
}

func (s Store) executeMutation(ctx context.Context, runner dbRunner, sqlQuery string) (int64, error) {
	start := time.Now()
	result, execErr := runner.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(sqlQuery, time.Since(start))

	if execErr != nil {
		s.logError(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		return 0, errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		return 0, errors.Join(lending.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, nil
}

func (s Store) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (s Store) scanError(scanErr error) error {
	s.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
	return errors.Join(lending.ErrScanningDBRowFailed, scanErr)
}

func scanBook(rows adapters.DBRows) (lending.Book, error) {
	var book lending.Book
	var isbn, borrowedBy sql.NullString
	var borrowedAt, dueAt sql.NullTime

	scanErr := rows.Scan(
		&book.ID, &book.Title, &book.Author, &isbn, &book.Year, &book.Category,
		&book.Available, &borrowedBy, &borrowedAt, &dueAt, &book.Rating, &book.RatingCount,
	)
	if scanErr != nil {
		return lending.Book{}, scanErr
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

func scanStudent(rows adapters.DBRows) (lending.Student, error) {
	var student lending.Student
	var uid string

	scanErr := rows.Scan(
		&uid, &student.Name, &student.Department, &student.Year,
		&student.Points, &student.BooksBorrowed, &student.BooksReturned, &student.Seq,
	)
	if scanErr != nil {
		return lending.Student{}, scanErr
	}

	student.UID = lending.StudentID(uid)

	return student, nil
}

func scanLoan(rows adapters.DBRows) (lending.LoanRecord, error) {
	var loan lending.LoanRecord
	var id string
	var uid string
	var returnedAt sql.NullTime

	scanErr := rows.Scan(&id, &uid, &loan.BookID, &loan.BorrowedAt, &returnedAt, &loan.Status)
	if scanErr != nil {
		return lending.LoanRecord{}, scanErr
	}

	parsedID, parseErr := uuid.Parse(id)
	if parseErr != nil {
		return lending.LoanRecord{}, parseErr
	}

	loan.ID = parsedID
	loan.StudentUID = lending.StudentID(uid)
	loan.BorrowedAt = loan.BorrowedAt.UTC()

	if returnedAt.Valid {
		loan.ReturnedAt = returnedAt.Time.UTC()
	}

	return loan, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}

	return value
}

// logQueryWithDuration logs SQL statements with execution time at debug
// level if the logger is configured.
func (s Store) logQueryWithDuration(sqlQuery string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (s Store) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s Store) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds
// with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
