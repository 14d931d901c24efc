package lending

import (
	"context"
	"errors"
	"time"

	"github.com/campuslib/lending-engine-go/lending/rewards"
)

const (
	defaultLoanPeriodDays = 14

	logMsgBookBorrowed      = "book borrowed"
	logMsgBookReturned      = "book returned"
	logMsgBookRated         = "book rated"
	logMsgStudentRegistered = "student registered"
	logMsgBorrowConflict    = "borrow rejected, book unavailable"
	logMsgReturnRejected    = "return rejected, no matching open loan"
	logAttrBookID           = "book_id"
	logAttrStudentUID       = "student_uid"
	logAttrDueDate          = "due_date"
	logAttrRating           = "rating"
	logAttrDurationMS       = "duration_ms"

	metricBorrow         = "lending_borrow"
	metricReturn         = "lending_return"
	metricRate           = "lending_rate"
	metricBorrowConflict = "lending_borrow_conflict"
	metricLabelOutcome   = "outcome"
	outcomeSuccess       = "success"
	outcomeFailure       = "failure"
)

// Engine enforces the borrow/return state transitions, due-date computation
// and history logging, and applies the rewards ledger inside the same unit
// of work. It is safe for concurrent use; per-book mutual exclusion is
// provided by the injected Storage.
type Engine struct {
	storage    Storage
	logger     Logger
	metrics    MetricsCollector
	clock      func() time.Time
	loanDays   int
	openRating bool
}

// EngineOption defines a functional option for configuring an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the Engine.
func WithLogger(logger Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetricsCollector sets the metrics collector for the Engine.
func WithMetricsCollector(metrics MetricsCollector) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLoanPeriod overrides the default 14-day loan period.
func WithLoanPeriod(days int) EngineOption {
	return func(e *Engine) {
		if days > 0 {
			e.loanDays = days
		}
	}
}

// WithOpenRating disables the borrower-only rating policy, restoring the
// behavior where any caller may rate any book.
func WithOpenRating() EngineOption {
	return func(e *Engine) {
		e.openRating = true
	}
}

// NewEngine creates an Engine on top of the given Storage with optional
// configuration.
func NewEngine(storage Storage, options ...EngineOption) *Engine {
	e := &Engine{
		storage:  storage,
		clock:    time.Now,
		loanDays: defaultLoanPeriodDays,
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// Borrow lends a book to a student and returns the computed due date.
//
// The availability check and the state flip are one conditional update, so
// of two concurrent borrow attempts on the same available book exactly one
// succeeds; the other receives ErrBookUnavailable. A missing book also
// reports ErrBookUnavailable. Within the same unit of work the open loan
// record is appended and the student earns the borrow reward.
func (e *Engine) Borrow(ctx context.Context, bookID BookID, uid StudentID) (time.Time, error) {
	if err := uid.Validate(); err != nil {
		return time.Time{}, err
	}

	start := e.clock()
	borrowedAt := DateOf(start)
	dueAt := borrowedAt.AddDate(0, 0, e.loanDays)

	txErr := e.storage.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.GetStudent(ctx, uid); err != nil {
			return err
		}

		borrowed, err := tx.MarkBookBorrowed(ctx, bookID, uid, borrowedAt, dueAt)
		if err != nil {
			return err
		}

		if !borrowed {
			return ErrBookUnavailable
		}

		if err := tx.AppendLoan(ctx, BuildOpenLoan(uid, bookID, borrowedAt)); err != nil {
			return err
		}

		return tx.ApplyStudentDeltas(ctx, uid, rewards.DeltaFor(rewards.EventBorrow), 1, 0)
	})

	if txErr != nil {
		e.recordOutcome(metricBorrow, outcomeFailure)

		if errors.Is(txErr, ErrBookUnavailable) {
			e.incrementCounter(metricBorrowConflict, nil)
			e.logInfo(logMsgBorrowConflict, logAttrBookID, bookID, logAttrStudentUID, uid.String())
		}

		return time.Time{}, txErr
	}

	e.recordOutcome(metricBorrow, outcomeSuccess)
	e.recordDuration(metricBorrow, e.clock().Sub(start))
	e.logInfo(logMsgBookBorrowed,
		logAttrBookID, bookID,
		logAttrStudentUID, uid.String(),
		logAttrDueDate, dueAt.Format(time.DateOnly))

	return dueAt, nil
}

// Return gives a borrowed book back.
//
// Both the book flip and the history close are conditional on the caller
// holding the loan; if either finds no matching state the whole unit of
// work rolls back with ErrNotBorrowedByCaller. Returning twice for the same
// (book, student) pair fails the second time the same way.
func (e *Engine) Return(ctx context.Context, bookID BookID, uid StudentID) error {
	if err := uid.Validate(); err != nil {
		return err
	}

	start := e.clock()
	returnedAt := DateOf(start)

	txErr := e.storage.WithinTx(ctx, func(tx Tx) error {
		returned, err := tx.MarkBookReturned(ctx, bookID, uid)
		if err != nil {
			return err
		}

		if !returned {
			return ErrNotBorrowedByCaller
		}

		closed, err := tx.CloseLoan(ctx, uid, bookID, returnedAt)
		if err != nil {
			return err
		}

		if !closed {
			return ErrNotBorrowedByCaller
		}

		return tx.ApplyStudentDeltas(ctx, uid, rewards.DeltaFor(rewards.EventReturn), 0, 1)
	})

	if txErr != nil {
		e.recordOutcome(metricReturn, outcomeFailure)

		if errors.Is(txErr, ErrNotBorrowedByCaller) {
			e.logInfo(logMsgReturnRejected, logAttrBookID, bookID, logAttrStudentUID, uid.String())
		}

		return txErr
	}

	e.recordOutcome(metricReturn, outcomeSuccess)
	e.recordDuration(metricReturn, e.clock().Sub(start))
	e.logInfo(logMsgBookReturned, logAttrBookID, bookID, logAttrStudentUID, uid.String())

	return nil
}

// Rate records a score in [1,5] for a book and returns the new running
// average, computed as (oldAvg*oldCount + score) / (oldCount+1).
//
// By default rating is restricted to students with a loan record for the
// book (ErrNotBorrowedByCaller otherwise); WithOpenRating lifts that.
func (e *Engine) Rate(ctx context.Context, bookID BookID, uid StudentID, score int) (float64, error) {
	if err := uid.Validate(); err != nil {
		return 0, err
	}

	if score < 1 || score > 5 {
		return 0, ErrInvalidRating
	}

	var newAverage float64

	txErr := e.storage.WithinTx(ctx, func(tx Tx) error {
		book, err := tx.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}

		if !e.openRating {
			hasLoan, loanErr := tx.HasLoan(ctx, uid, bookID)
			if loanErr != nil {
				return loanErr
			}

			if !hasLoan {
				return ErrNotBorrowedByCaller
			}
		}

		newCount := book.RatingCount + 1
		newAverage = (book.Rating*float64(book.RatingCount) + float64(score)) / float64(newCount)

		return tx.SetBookRating(ctx, bookID, newAverage, newCount)
	})

	if txErr != nil {
		e.recordOutcome(metricRate, outcomeFailure)
		return 0, txErr
	}

	e.recordOutcome(metricRate, outcomeSuccess)
	e.logInfo(logMsgBookRated, logAttrBookID, bookID, logAttrRating, newAverage)

	return newAverage, nil
}

// Search performs a case-insensitive substring match over exactly one book
// field; an unknown or empty field selector falls back to title. Results
// are ordered by title ascending.
func (e *Engine) Search(ctx context.Context, field SearchFieldString, term string) ([]Book, error) {
	return e.storage.SearchBooks(ctx, NormalizeSearchField(field), term)
}

// Leaderboard returns the top students by points: everyone with points > 0,
// descending, ties broken by registration order, at most 10 entries.
func (e *Engine) Leaderboard(ctx context.Context) ([]Student, error) {
	return e.storage.TopStudents(ctx, rewards.LeaderboardLimit)
}

// AddBook creates a catalog record (admin operation).
func (e *Engine) AddBook(ctx context.Context, title string, author string, isbn string, year int, category string) (Book, error) {
	book := Book{
		Title:     title,
		Author:    author,
		ISBN:      isbn,
		Year:      year,
		Category:  category,
		Available: true,
	}

	id, err := e.storage.InsertBook(ctx, book)
	if err != nil {
		return Book{}, err
	}

	book.ID = id

	return book, nil
}

// RemoveBook deletes a catalog record (admin operation). Borrowing history
// referencing the book is retained as an audit trail.
func (e *Engine) RemoveBook(ctx context.Context, bookID BookID) error {
	return e.storage.DeleteBook(ctx, bookID)
}

// GetBook loads a single catalog record.
func (e *Engine) GetBook(ctx context.Context, bookID BookID) (Book, error) {
	return e.storage.GetBook(ctx, bookID)
}

// EnsureStudent returns the roster record for uid, creating it on first
// successful authentication. Department and year are derived from the
// identifier; an empty name falls back to a generated display name.
func (e *Engine) EnsureStudent(ctx context.Context, uid StudentID, name string) (Student, error) {
	if err := uid.Validate(); err != nil {
		return Student{}, err
	}

	if name == "" {
		name = uid.DefaultName()
	}

	student := Student{
		UID:        uid,
		Name:       name,
		Department: uid.Department(),
		Year:       uid.EnrollmentYear(),
	}

	stored, created, err := e.storage.InsertStudent(ctx, student)
	if err != nil {
		return Student{}, err
	}

	if created {
		e.logInfo(logMsgStudentRegistered, logAttrStudentUID, uid.String())
	}

	return stored, nil
}

// GetStudent loads a roster record.
func (e *Engine) GetStudent(ctx context.Context, uid StudentID) (Student, error) {
	if err := uid.Validate(); err != nil {
		return Student{}, err
	}

	return e.storage.GetStudent(ctx, uid)
}

// History returns a student's full borrowing history, most recent first.
func (e *Engine) History(ctx context.Context, uid StudentID) ([]LoanRecord, error) {
	if err := uid.Validate(); err != nil {
		return nil, err
	}

	return e.storage.LoansByStudent(ctx, uid)
}

// Stats returns aggregate catalog and roster counts.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	return e.storage.Stats(ctx)
}

func (e *Engine) logInfo(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) recordDuration(metric string, duration time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordDuration(metric, duration, nil)
	}
}

func (e *Engine) incrementCounter(metric string, labels map[string]string) {
	if e.metrics != nil {
		e.metrics.IncrementCounter(metric, labels)
	}
}

func (e *Engine) recordOutcome(metric string, outcome string) {
	if e.metrics != nil {
		e.metrics.IncrementCounter(metric, map[string]string{metricLabelOutcome: outcome})
	}
}
