package postgresengine

import (
	"github.com/campuslib/lending-engine-go/lending"
)

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithBooksTable sets the catalog table name.
func WithBooksTable(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return lending.ErrEmptyTableName
		}

		s.booksTable = tableName

		return nil
	}
}

// WithStudentsTable sets the roster table name.
func WithStudentsTable(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return lending.ErrEmptyTableName
		}

		s.studentsTable = tableName

		return nil
	}
}

// WithLoansTable sets the borrowing history table name.
func WithLoansTable(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return lending.ErrEmptyTableName
		}

		s.loansTable = tableName

		return nil
	}
}

// WithLogger sets the logger for the Store.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: operation outcomes and durations (production-safe)
// Warn level: non-critical issues like rollback failures
// Error level: failures that cause operation errors.
func WithLogger(logger lending.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}
