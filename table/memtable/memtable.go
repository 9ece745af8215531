// Package memtable is an in-process table.Repository.
//
// Writes follow the same optimistic read-mutate-commit cycle as the remote
// backends: mutators run outside the lock against a copy and the commit
// fails over to a retry if the row's ETag moved in between.
package memtable

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/table"
)

// Op identifies a repository operation for fault injection.
type Op int

const (
	OpFind Op = iota
	OpCreate
	OpUpdate
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpFind:
		return "find"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Hook is called before every operation; a non-nil error fails the operation
// without touching the row.
type Hook func(ctx context.Context, op Op, tbl string, key cell.Key) error

// Options configures a Repository.
type Options struct {
	// MaxAttempts bounds optimistic retries. Default: table.DefaultMaxAttempts.
	MaxAttempts int

	// Now returns the commit timestamp. Default: time.Now.
	Now func() time.Time
}

// Repository holds tables in memory.
type Repository struct {
	mu     sync.Mutex
	tables map[string]map[cell.Key]*table.Row
	hook   Hook
	opt    Options
}

var (
	_ table.Repository = (*Repository)(nil)
	_ table.Scanner    = (*Repository)(nil)
)

// New returns an empty repository.
func New(opt Options) *Repository {
	if opt.MaxAttempts < 1 {
		opt.MaxAttempts = table.DefaultMaxAttempts
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Repository{
		tables: make(map[string]map[cell.Key]*table.Row),
		opt:    opt,
	}
}

// SetHook installs h, replacing any previous hook. Pass nil to remove it.
func (r *Repository) SetHook(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = h
}

func (r *Repository) before(ctx context.Context, op Op, tbl string, key cell.Key) error {
	r.mu.Lock()
	h := r.hook
	r.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, op, tbl, key)
}

// load returns a copy of the stored row, or nil.
func (r *Repository) load(tbl string, key cell.Key) *table.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tables[tbl][key].Clone()
}

// commit stores row if the stored ETag still equals etag (0 = absent).
func (r *Repository) commit(tbl string, row *table.Row, etag int64) (*table.Row, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tables[tbl]
	if t == nil {
		t = make(map[cell.Key]*table.Row)
		r.tables[tbl] = t
	}
	var current int64
	if cur := t[row.Key]; cur != nil {
		current = cur.ETag
	}
	if current != etag {
		return nil, false
	}
	stored := row.Clone()
	stored.ETag = etag + 1
	stored.Timestamp = r.opt.Now().UTC()
	if stored.Cells == nil {
		stored.Cells = cell.Bag{}
	}
	t[row.Key] = stored
	return stored.Clone(), true
}

func (r *Repository) Find(ctx context.Context, tbl string, key cell.Key) (*table.Row, error) {
	if err := r.before(ctx, OpFind, tbl, key); err != nil {
		return nil, err
	}
	row := r.load(tbl, key)
	if row == nil {
		return nil, table.ErrNotFound
	}
	return row, nil
}

func (r *Repository) CreateOrGet(ctx context.Context, tbl string, key cell.Key, init table.Mutator) (bool, *table.Row, error) {
	if err := r.before(ctx, OpCreate, tbl, key); err != nil {
		return false, nil, err
	}
	for attempt := 0; attempt < r.opt.MaxAttempts; attempt++ {
		if existing := r.load(tbl, key); existing != nil {
			return false, existing, nil
		}
		row := &table.Row{Key: key, Cells: cell.Bag{}}
		if err := init(row); err != nil {
			return false, nil, err
		}
		row.Key = key
		if stored, ok := r.commit(tbl, row, 0); ok {
			return true, stored, nil
		}
	}
	return false, nil, table.ErrConflict
}

func (r *Repository) Update(ctx context.Context, tbl string, key cell.Key, mutate table.Mutator) (*table.Row, error) {
	if err := r.before(ctx, OpUpdate, tbl, key); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < r.opt.MaxAttempts; attempt++ {
		current := r.load(tbl, key)
		if current == nil {
			return nil, table.ErrNotFound
		}
		next := current.Clone()
		if err := mutate(next); errors.Is(err, table.ErrNoChange) {
			return current, nil
		} else if err != nil {
			return nil, err
		}
		next.Key = key
		if stored, ok := r.commit(tbl, next, current.ETag); ok {
			return stored, nil
		}
	}
	return nil, table.ErrConflict
}

func (r *Repository) Delete(ctx context.Context, tbl string, key cell.Key) (*table.Row, error) {
	if err := r.before(ctx, OpDelete, tbl, key); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.tables[tbl][key]
	if row == nil {
		return nil, table.ErrNotFound
	}
	delete(r.tables[tbl], key)
	return row, nil
}

// Scan visits a snapshot of tbl.
func (r *Repository) Scan(ctx context.Context, tbl string, fn func(*table.Row) error) error {
	r.mu.Lock()
	rows := make([]*table.Row, 0, len(r.tables[tbl]))
	for _, row := range r.tables[tbl] {
		rows = append(rows, row.Clone())
	}
	r.mu.Unlock()

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of rows in tbl.
func (r *Repository) Len(tbl string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables[tbl])
}
