// Package sqliteengine provides the SQLite implementation of the lending
// storage contract, backed by database/sql and mattn/go-sqlite3.
//
// All write transactions are opened with BEGIN IMMEDIATE (via the
// _txlock=immediate DSN parameter) so that two concurrent borrow attempts
// serialize at transaction start instead of failing on upgrade deadlocks.
// The decisive availability checks still run as conditional updates, the
// same way the PostgreSQL engine does them.
package sqliteengine
