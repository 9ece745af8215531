// Package index maintains secondary index rows alongside primary rows.
//
// An index row lives in its own table, is addressed by a lookup key, and
// lists the (row key, partition key) pairs of the primary rows currently
// indexed under that key. The repository only offers single-row atomic
// writes, so every mutation here returns a saga.Compensation that undoes
// exactly the delta it applied. Callers run it when a later write fails.
//
// Compensations never restore a snapshot: they re-read the index row and
// reverse their own delta, so concurrent edits by other writers survive.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/lookup"
	"github.com/jacentio/lattice/metrics"
	"github.com/jacentio/lattice/saga"
	"github.com/jacentio/lattice/table"
)

var (
	// ErrValidation is returned when a required index entry is missing.
	ErrValidation = errors.New("lattice: index validation failed")
)

// ValidationError describes the index entry that failed validation.
type ValidationError struct {
	Table  string
	Key    cell.Key
	Member cell.Key

	// RowMissing is set when the index row itself does not exist.
	RowMissing bool
}

func (e *ValidationError) Error() string {
	if e.RowMissing {
		return fmt.Sprintf("%v: %s %v does not exist", ErrValidation, e.Table, e.Key)
	}
	return fmt.Sprintf("%v: %s %v does not list %v", ErrValidation, e.Table, e.Key, e.Member)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Config holds configuration for the Maintainer.
type Config struct {
	// MaxFanOut bounds concurrent index row writes within one call.
	// Default: 0 (unlimited)
	MaxFanOut int

	// Logger receives debug output. Default: slog.Default()
	Logger *slog.Logger
}

// Maintainer applies membership changes to index rows.
type Maintainer struct {
	repo   table.Repository
	config Config
}

// New creates a Maintainer writing through repo.
func New(repo table.Repository, cfg Config) *Maintainer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxFanOut < 0 {
		cfg.MaxFanOut = 0
	}
	return &Maintainer{repo: repo, config: cfg}
}

// Get returns the index row at key, or table.ErrNotFound.
func (m *Maintainer) Get(ctx context.Context, tbl string, key cell.Key) (*Row, error) {
	row, err := m.repo.Find(ctx, tbl, key)
	if err != nil {
		return nil, err
	}
	return decodeRow(row)
}

// Create adds member to the index row of every key, creating rows as
// needed. The compensation removes one occurrence of member from each.
func (m *Maintainer) Create(ctx context.Context, tbl string, keys []cell.Key, member cell.Key) (saga.Compensation, error) {
	return m.fanOut(ctx, addTasks(m, tbl, keys, member))
}

// Update moves member from the rows of oldKeys to the rows of newKeys.
// Keys present in both are left untouched.
func (m *Maintainer) Update(ctx context.Context, tbl string, oldKeys, newKeys []cell.Key, member cell.Key) (saga.Compensation, error) {
	added, removed := lookup.Diff(oldKeys, newKeys)
	tasks := addTasks(m, tbl, added, member)
	tasks = append(tasks, removeTasks(m, tbl, removed, member)...)
	return m.fanOut(ctx, tasks)
}

// Delete removes member from the index row of every key. The compensation
// re-adds as many occurrences as were removed.
func (m *Maintainer) Delete(ctx context.Context, tbl string, keys []cell.Key, member cell.Key) (saga.Compensation, error) {
	return m.fanOut(ctx, removeTasks(m, tbl, keys, member))
}

// Validate checks without writing that the index row of every key lists
// member. It returns a *ValidationError for the first missing entry.
func (m *Maintainer) Validate(ctx context.Context, tbl string, keys []cell.Key, member cell.Key) error {
	tasks := make([]task, len(keys))
	for i, key := range keys {
		tasks[i] = func(ctx context.Context) (saga.Compensation, error) {
			row, err := m.Get(ctx, tbl, key)
			if errors.Is(err, table.ErrNotFound) {
				return saga.None(), &ValidationError{Table: tbl, Key: key, Member: member, RowMissing: true}
			}
			if err != nil {
				return saga.None(), err
			}
			if !row.Contains(member) {
				return saga.None(), &ValidationError{Table: tbl, Key: key, Member: member}
			}
			return saga.None(), nil
		}
	}
	_, err := m.fanOut(ctx, tasks)
	return err
}

// Ensure adds member to the index row of every key unless it is already
// listed. It is idempotent and returns no compensation.
func (m *Maintainer) Ensure(ctx context.Context, tbl string, keys []cell.Key, member cell.Key) error {
	tasks := make([]task, len(keys))
	for i, key := range keys {
		tasks[i] = func(ctx context.Context) (saga.Compensation, error) {
			return saga.None(), m.upsert(ctx, &change{tbl: tbl, key: key, op: "add", edit: appendMissing(member)})
		}
	}
	_, err := m.fanOut(ctx, tasks)
	return err
}

// Purge removes every occurrence of member from the index row of every
// key. It is idempotent and returns no compensation.
func (m *Maintainer) Purge(ctx context.Context, tbl string, keys []cell.Key, member cell.Key) error {
	tasks := make([]task, len(keys))
	for i, key := range keys {
		tasks[i] = func(ctx context.Context) (saga.Compensation, error) {
			var n int
			return saga.None(), m.update(ctx, &change{tbl: tbl, key: key, op: "remove", edit: removeAll(member, &n)})
		}
	}
	_, err := m.fanOut(ctx, tasks)
	return err
}

// CascadeDelete deletes the index row at key and every primary row it
// lists from primaryTable. It returns the deleted primary rows. The
// compensation re-creates the primary rows and re-adds the members to the
// index row.
func (m *Maintainer) CascadeDelete(ctx context.Context, tbl string, key cell.Key, primaryTable string) ([]*table.Row, saga.Compensation, error) {
	deleted, err := m.repo.Delete(ctx, tbl, key)
	if err != nil {
		return nil, saga.None(), err
	}
	idx, err := decodeRow(deleted)
	if err != nil {
		return nil, saga.None(), saga.Abort(ctx, saga.Of(func(ctx context.Context) error {
			_, _, err := m.repo.CreateOrGet(ctx, tbl, key, table.Put(deleted.Cells))
			return err
		}), err)
	}
	undo := saga.Of(func(ctx context.Context) error {
		return m.upsert(ctx, &change{tbl: tbl, key: key, op: "add", edit: appendMembers(idx.Members...)})
	})

	members := lookup.Dedup(slices.Clone(idx.Members))
	rows := make([]*table.Row, len(members))
	tasks := make([]task, len(members))
	for i, member := range members {
		tasks[i] = func(ctx context.Context) (saga.Compensation, error) {
			row, err := m.repo.Delete(ctx, primaryTable, member)
			if errors.Is(err, table.ErrNotFound) {
				return saga.None(), nil
			}
			if err != nil {
				return saga.None(), err
			}
			rows[i] = row
			return saga.Of(func(ctx context.Context) error {
				_, _, err := m.repo.CreateOrGet(ctx, primaryTable, row.Key, table.Put(row.Cells))
				return err
			}), nil
		}
	}
	restore, err := m.fanOut(ctx, tasks)
	undo = undo.Then(restore)
	if err != nil {
		return nil, saga.None(), saga.Abort(ctx, undo, err)
	}

	out := rows[:0]
	for _, row := range rows {
		if row != nil {
			out = append(out, row)
		}
	}
	m.config.Logger.Debug("index cascade delete",
		"table", tbl,
		"key", key,
		"primaryTable", primaryTable,
		"deleted", len(out),
	)
	return out, undo, nil
}

func addTasks(m *Maintainer, tbl string, keys []cell.Key, member cell.Key) []task {
	tasks := make([]task, 0, len(keys))
	for _, key := range keys {
		tasks = append(tasks, func(ctx context.Context) (saga.Compensation, error) {
			if err := m.upsert(ctx, &change{tbl: tbl, key: key, op: "add", edit: appendMembers(member)}); err != nil {
				return saga.None(), err
			}
			return saga.Of(func(ctx context.Context) error {
				return m.update(ctx, &change{tbl: tbl, key: key, op: "remove", edit: removeOne(member)})
			}), nil
		})
	}
	return tasks
}

func removeTasks(m *Maintainer, tbl string, keys []cell.Key, member cell.Key) []task {
	tasks := make([]task, 0, len(keys))
	for _, key := range keys {
		tasks = append(tasks, func(ctx context.Context) (saga.Compensation, error) {
			var n int
			if err := m.update(ctx, &change{tbl: tbl, key: key, op: "remove", edit: removeAll(member, &n)}); err != nil {
				return saga.None(), err
			}
			if n == 0 {
				return saga.None(), nil
			}
			readd := slices.Repeat([]cell.Key{member}, n)
			return saga.Of(func(ctx context.Context) error {
				return m.upsert(ctx, &change{tbl: tbl, key: key, op: "add", edit: appendMembers(readd...)})
			}), nil
		})
	}
	return tasks
}

// task is one index row mutation within a fan-out.
type task func(ctx context.Context) (saga.Compensation, error)

// fanOut runs tasks concurrently and waits for all of them. Tasks are not
// cancelled when one fails, so every applied write has a compensation. On
// failure the compensations of the successful tasks run before the error
// is returned.
func (m *Maintainer) fanOut(ctx context.Context, tasks []task) (saga.Compensation, error) {
	comps := make([]saga.Compensation, len(tasks))
	var g errgroup.Group
	if m.config.MaxFanOut > 0 {
		g.SetLimit(m.config.MaxFanOut)
	}
	for i, t := range tasks {
		g.Go(func() error {
			c, err := t(ctx)
			comps[i] = c
			return err
		})
	}
	err := g.Wait()
	undo := saga.Join(comps...)
	if err != nil {
		return saga.None(), saga.Abort(ctx, undo, err)
	}
	return undo, nil
}

// change is one membership edit of one index row.
type change struct {
	tbl  string
	key  cell.Key
	op   string
	edit func([]cell.Key) []cell.Key

	skipped bool
}

// mutate applies the edit to row. An edit that leaves the member list as
// it was returns table.ErrNoChange so the row is not rewritten.
func (c *change) mutate(row *table.Row) error {
	members, err := decodeMembers(row.Cells)
	if err != nil {
		return err
	}
	next := c.edit(members)
	c.skipped = row.ETag != 0 && slices.Equal(members, next)
	if c.skipped {
		return table.ErrNoChange
	}
	if next == nil {
		next = []cell.Key{}
	}
	return encodeMembers(next, row.Cells)
}

func (m *Maintainer) record(c *change) {
	if c.skipped {
		metrics.IndexSkippedWrites.WithLabelValues(c.tbl).Inc()
		m.config.Logger.Debug("index write skipped",
			"table", c.tbl,
			"key", c.key,
			"op", c.op,
		)
		return
	}
	metrics.IndexWrites.WithLabelValues(c.tbl, c.op).Inc()
}

// upsert applies c to the index row, creating the row if it doesn't exist.
func (m *Maintainer) upsert(ctx context.Context, c *change) error {
	for attempt := 1; ; attempt++ {
		created, _, err := m.repo.CreateOrGet(ctx, c.tbl, c.key, c.mutate)
		if err != nil {
			return fmt.Errorf("index %s %v: %w", c.tbl, c.key, err)
		}
		if created {
			m.record(c)
			return nil
		}
		_, err = m.repo.Update(ctx, c.tbl, c.key, c.mutate)
		if errors.Is(err, table.ErrNotFound) && attempt < table.DefaultMaxAttempts {
			continue // cascade-deleted in between
		}
		if err != nil {
			return fmt.Errorf("index %s %v: %w", c.tbl, c.key, err)
		}
		m.record(c)
		return nil
	}
}

// update applies c to an existing index row. A missing row has nothing to
// remove and is not an error.
func (m *Maintainer) update(ctx context.Context, c *change) error {
	_, err := m.repo.Update(ctx, c.tbl, c.key, c.mutate)
	if errors.Is(err, table.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index %s %v: %w", c.tbl, c.key, err)
	}
	m.record(c)
	return nil
}
