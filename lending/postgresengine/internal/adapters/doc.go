// Package adapters provides database adapter implementations for the
// PostgreSQL lending store.
//
// This package implements the adapter pattern to support multiple
// PostgreSQL database libraries: pgxpool.Pool, sql.DB, and sqlx.DB. All
// adapters provide equivalent functionality through a common DBAdapter
// interface, including transaction handles, so the store can run its units
// of work against any supported connection type.
package adapters
