package adapters

import (
	"context"
	"database/sql"
)

// stdTx wraps a database/sql transaction to implement the DBTx interface.
// It is shared by the sql.DB and sqlx.DB adapters.
type stdTx struct {
	tx *sql.Tx
}

func (t *stdTx) Query(ctx context.Context, query string) (DBRows, error) {
	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &stdRows{rows: rows}, nil
}

func (t *stdTx) Exec(ctx context.Context, query string) (DBResult, error) {
	result, err := t.tx.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &stdResult{result: result}, nil
}

func (t *stdTx) Commit(_ context.Context) error {
	return t.tx.Commit()
}

func (t *stdTx) Rollback(_ context.Context) error {
	return t.tx.Rollback()
}

// stdRows wraps standard library sql.Rows to implement DBRows interface.
type stdRows struct {
	rows *sql.Rows
}

// Next advances to the next row.
func (s *stdRows) Next() bool {
	return s.rows.Next()
}

// Scan copies row values into provided destinations.
func (s *stdRows) Scan(dest ...any) error {
	return s.rows.Scan(dest...)
}

// Close closes the rows iterator.
func (s *stdRows) Close() error {
	return s.rows.Close()
}

// stdResult wraps standard library sql.Result to implement DBResult interface.
type stdResult struct {
	result sql.Result
}

// RowsAffected returns the number of rows affected by the command.
func (s *stdResult) RowsAffected() (int64, error) {
	return s.result.RowsAffected()
}
