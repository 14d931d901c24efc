// Package lending implements the borrow/return state machine and the rewards
// accounting of a single-copy library catalog.
//
// The package is storage-agnostic: the Engine runs against the Storage
// interface, and every mutating operation executes inside one unit of work
// (Tx) so that the precondition check and the state mutation are atomic.
// Concrete Storage implementations live in the postgresengine, sqliteengine
// and memoryengine sub-packages.
//
// Concurrency model: all mutations of one book run under mutual exclusion.
// The SQL engines combine row locking with conditional updates on the
// availability flag - the loser of a concurrent borrow race sees zero rows
// affected and receives ErrBookUnavailable, never a corrupted state.
package lending
