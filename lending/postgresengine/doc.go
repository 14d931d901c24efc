// Package postgresengine provides the PostgreSQL-backed lending.Storage.
//
// Queries are built with goqu and executed through a database adapter, so
// the store works with pgxpool.Pool, sql.DB and sqlx.DB connections alike.
// Every unit of work runs in one transaction; the borrow and return state
// flips are conditional updates on the book row, so a concurrency conflict
// surfaces as zero rows affected instead of corrupted state.
package postgresengine
