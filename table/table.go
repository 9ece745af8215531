// Package table defines the row store the engine writes through.
//
// A Repository offers atomic single-row operations over named tables whose
// rows are addressed by a partition key and a row key and hold a flat bag of
// typed cells. There are no multi-row transactions; callers combine
// single-row writes with compensations (see package saga).
//
// Backends live in subpackages: memtable (in-process), dynamo (DynamoDB) and
// bolt (a local bbolt file).
package table

import (
	"context"
	"errors"
	"time"

	"github.com/jacentio/lattice/cell"
)

var (
	// ErrNotFound is returned when a row doesn't exist.
	ErrNotFound = errors.New("lattice: row not found")

	// ErrConflict is returned when an optimistic write keeps losing to
	// concurrent writers.
	ErrConflict = errors.New("lattice: row was modified concurrently")

	// ErrNoChange is returned by a Mutator to leave the row unwritten. The
	// repository then returns the current row with its ETag unchanged.
	ErrNoChange = errors.New("lattice: no change")
)

// Row is one stored row.
type Row struct {
	Key cell.Key

	// ETag is the row's version. It starts at 1 and increases with every
	// committed write.
	ETag int64

	// Timestamp is the time of the last committed write.
	Timestamp time.Time

	Cells cell.Bag
}

// Clone returns a deep copy of r.
func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	c := *r
	c.Cells = r.Cells.Clone()
	return &c
}

// Mutator edits row.Cells in place. The row is a private copy; its Key, ETag
// and Timestamp describe the version being replaced (ETag 0 for a new row).
// Mutators may run more than once when a write is retried.
type Mutator func(row *Row) error

// Repository is the single-row store.
type Repository interface {
	// Find returns the row at key, or ErrNotFound.
	Find(ctx context.Context, tbl string, key cell.Key) (*Row, error)

	// CreateOrGet creates the row at key from init unless it exists, and
	// returns whether it was created along with the committed row.
	CreateOrGet(ctx context.Context, tbl string, key cell.Key, init Mutator) (bool, *Row, error)

	// Update applies mutate to the current row and commits it if the row
	// was not modified in between, retrying otherwise. It returns
	// ErrNotFound for a missing row and ErrConflict when retries run out.
	Update(ctx context.Context, tbl string, key cell.Key, mutate Mutator) (*Row, error)

	// Delete removes the row at key and returns it, or ErrNotFound.
	Delete(ctx context.Context, tbl string, key cell.Key) (*Row, error)
}

// Scanner is implemented by repositories that can enumerate a table.
type Scanner interface {
	// Scan calls fn for every row of tbl, in no particular order, stopping
	// at the first error.
	Scan(ctx context.Context, tbl string, fn func(*Row) error) error
}

// Put is a mutator replacing the row's cells with a copy of cells.
func Put(cells cell.Bag) Mutator {
	return func(row *Row) error {
		row.Cells = cells.Clone()
		return nil
	}
}

// DefaultMaxAttempts is the number of optimistic write attempts backends
// make before returning ErrConflict.
const DefaultMaxAttempts = 8
