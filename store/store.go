package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/index"
	"github.com/jacentio/lattice/lookup"
	"github.com/jacentio/lattice/metrics"
	"github.com/jacentio/lattice/saga"
	"github.com/jacentio/lattice/table"
)

// Store writes typed records and keeps their secondary indices in step.
type Store struct {
	repo     table.Repository
	config   Config
	registry *Registry
	index    *index.Maintainer

	// byIndexTable maps an index table name to its owning table and field.
	byIndexTable map[string]IndexRef
}

// IndexRef identifies one declared index.
type IndexRef struct {
	Table string
	Field string
}

// New creates a Store over repo serving the tables in registry.
func New(repo table.Repository, registry *Registry, config Config) *Store {
	config.validate()
	s := &Store{
		repo:         repo,
		config:       config,
		registry:     registry,
		index:        index.New(repo, index.Config{MaxFanOut: config.MaxFanOut, Logger: config.Logger}),
		byIndexTable: make(map[string]IndexRef),
	}
	for _, schema := range registry.Tables() {
		for _, field := range schema.IndexFields() {
			s.byIndexTable[s.indexTable(schema, field)] = IndexRef{Table: schema.Name(), Field: field}
		}
	}
	return s
}

// Registry returns the table registry.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Repository returns the underlying row store.
func (s *Store) Repository() table.Repository {
	return s.repo
}

// Indexes returns the index maintainer.
func (s *Store) Indexes() *index.Maintainer {
	return s.index
}

// IndexTable returns the index table name of a declared index.
func (s *Store) IndexTable(tableName, field string) (string, error) {
	schema, ok := s.registry.Table(tableName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, tableName)
	}
	if !slices.Contains(schema.IndexFields(), field) {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownIndex, tableName, field)
	}
	return s.indexTable(schema, field), nil
}

// IndexOwner resolves an index table name to the index it stores.
func (s *Store) IndexOwner(indexTable string) (IndexRef, bool) {
	ref, ok := s.byIndexTable[indexTable]
	return ref, ok
}

func (s *Store) indexTable(schema Schema, field string) string {
	if name := schema.declaredIndexTable(field); name != "" {
		return name
	}
	return s.config.IndexTablePrefix + schema.Name() + field
}

// abort runs undo after a failed write on tbl and returns cause, joined
// with any compensation failure.
func (s *Store) abort(ctx context.Context, tbl string, undo saga.Compensation, cause error) error {
	if undo.Len() == 0 {
		return cause
	}
	s.config.Logger.Warn("running compensation",
		"table", tbl,
		"steps", undo.Len(),
		"cause", cause,
	)
	err := saga.Abort(ctx, undo, cause)
	var sagaErr *saga.Error
	if errors.As(err, &sagaErr) {
		metrics.Compensations.WithLabelValues(tbl, "failed").Inc()
		s.config.Logger.Error("compensation failed",
			"table", tbl,
			"error", sagaErr.Err,
		)
		return err
	}
	metrics.Compensations.WithLabelValues(tbl, "ok").Inc()
	return err
}

// Repair reconciles the index rows of the record at key in tableName with
// its current state. Each image is a row body the record held at some point;
// index entries it produced that the current record doesn't are purged, and
// the current record's entries are ensured. Repair is idempotent and safe
// to run out of order.
func (s *Store) Repair(ctx context.Context, tableName string, key cell.Key, images ...cell.Bag) error {
	schema, ok := s.registry.Table(tableName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, tableName)
	}

	var current map[string][]cell.Key
	row, err := s.repo.Find(ctx, tableName, key)
	switch {
	case errors.Is(err, table.ErrNotFound):
	case err != nil:
		return err
	default:
		if current, err = schema.indexKeys(row.Cells); err != nil {
			return fmt.Errorf("repair %s %v: %w", tableName, key, err)
		}
	}

	stale := make(map[string][]cell.Key)
	for _, img := range images {
		if img == nil {
			continue
		}
		keys, err := schema.indexKeys(img)
		if err != nil {
			return fmt.Errorf("repair %s %v: %w", tableName, key, err)
		}
		for field, ks := range keys {
			_, removed := lookup.Diff(ks, current[field])
			stale[field] = append(stale[field], removed...)
		}
	}

	for _, field := range schema.IndexFields() {
		tbl := s.indexTable(schema, field)
		if ks := lookup.Dedup(stale[field]); len(ks) > 0 {
			if err := s.index.Purge(ctx, tbl, ks, key); err != nil {
				return err
			}
		}
		if ks := current[field]; len(ks) > 0 {
			if err := s.index.Ensure(ctx, tbl, ks, key); err != nil {
				return err
			}
		}
	}
	s.config.Logger.Debug("repaired index entries",
		"table", tableName,
		"key", key,
		"images", len(images),
	)
	return nil
}

// Reindex ensures every row of tableName is listed in its index rows. The
// repository must implement table.Scanner.
func (s *Store) Reindex(ctx context.Context, tableName string) (int, error) {
	scanner, ok := s.repo.(table.Scanner)
	if !ok {
		return 0, fmt.Errorf("reindex %s: repository cannot scan", tableName)
	}
	if _, ok := s.registry.Table(tableName); !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, tableName)
	}
	n := 0
	err := scanner.Scan(ctx, tableName, func(row *table.Row) error {
		n++
		return s.Repair(ctx, tableName, row.Key)
	})
	return n, err
}

// Table is a typed handle on one registered table.
type Table[T any] struct {
	store *Store
	def   *TableDef[T]
}

// Open returns a typed handle on def, which must be registered with s.
func Open[T any](s *Store, def *TableDef[T]) (*Table[T], error) {
	schema, ok := s.registry.Table(def.name)
	if !ok || schema != Schema(def) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, def.name)
	}
	return &Table[T]{store: s, def: def}, nil
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.def.name }

func (t *Table[T]) decode(row *table.Row) (*Record[T], error) {
	v, err := t.def.codec.DecodeBag(row.Cells)
	if err != nil {
		return nil, fmt.Errorf("decode %s %v: %w", t.def.name, row.Key, err)
	}
	return &Record[T]{Key: row.Key, ETag: row.ETag, Timestamp: row.Timestamp, Value: &v}, nil
}

func (t *Table[T]) indexTable(ix *typedIndex[T]) string {
	return t.store.indexTable(t.def, ix.field)
}

func (t *Table[T]) lookupIndex(field string) (*typedIndex[T], error) {
	ix := t.def.index(field)
	if ix == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownIndex, t.def.name, field)
	}
	return ix, nil
}

// Get returns the record at key.
func (t *Table[T]) Get(ctx context.Context, key cell.Key) (*Record[T], error) {
	row, err := t.store.repo.Find(ctx, t.def.name, key)
	if err != nil {
		return nil, err
	}
	return t.decode(row)
}

// Load returns the value at key.
func (t *Table[T]) Load(ctx context.Context, key cell.Key) (*T, error) {
	rec, err := t.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

// Insert stores a new record. Index entries are written first; if the
// primary write fails or the key is taken, they are compensated before the
// error is returned.
func (t *Table[T]) Insert(ctx context.Context, v *T) (*Record[T], error) {
	key := t.def.key(v)
	bag, err := t.def.codec.EncodeBag(*v)
	if err != nil {
		return nil, err
	}

	undo := saga.None()
	for _, ix := range t.def.indexes {
		c, err := t.store.index.Create(ctx, t.indexTable(ix), ix.extract(v), key)
		if err != nil {
			return nil, t.store.abort(ctx, t.def.name, undo, err)
		}
		undo = undo.Then(c)
	}

	created, row, err := t.store.repo.CreateOrGet(ctx, t.def.name, key, table.Put(bag))
	if err == nil && !created {
		err = fmt.Errorf("%w: %s %v", ErrAlreadyExists, t.def.name, key)
	}
	if err != nil {
		return nil, t.store.abort(ctx, t.def.name, undo, err)
	}
	return &Record[T]{Key: key, ETag: row.ETag, Timestamp: row.Timestamp, Value: v}, nil
}

// Update replaces the record at v's key. When etag is non-zero the write
// fails with ErrConflict unless the stored row still has that ETag. Index
// rows move from the stored record's keys to v's keys; an unchanged record
// is not rewritten.
func (t *Table[T]) Update(ctx context.Context, v *T, etag int64) (*Record[T], error) {
	key := t.def.key(v)
	bag, err := t.def.codec.EncodeBag(*v)
	if err != nil {
		return nil, err
	}

	prevRow, err := t.store.repo.Find(ctx, t.def.name, key)
	if err != nil {
		return nil, err
	}
	if etag != 0 && prevRow.ETag != etag {
		return nil, fmt.Errorf("%w: %s %v has etag %d, expected %d", ErrConflict, t.def.name, key, prevRow.ETag, etag)
	}
	prev, err := t.decode(prevRow)
	if err != nil {
		return nil, err
	}

	undo := saga.None()
	for _, ix := range t.def.indexes {
		c, err := t.store.index.Update(ctx, t.indexTable(ix), ix.extract(prev.Value), ix.extract(v), key)
		if err != nil {
			return nil, t.store.abort(ctx, t.def.name, undo, err)
		}
		undo = undo.Then(c)
	}

	row, err := t.store.repo.Update(ctx, t.def.name, key, func(row *table.Row) error {
		if row.ETag != prevRow.ETag {
			return fmt.Errorf("%w: %s %v changed during update", ErrConflict, t.def.name, key)
		}
		if row.Cells.Equal(bag) {
			return table.ErrNoChange
		}
		row.Cells = bag.Clone()
		return nil
	})
	if err != nil {
		return nil, t.store.abort(ctx, t.def.name, undo, err)
	}
	return &Record[T]{Key: key, ETag: row.ETag, Timestamp: row.Timestamp, Value: v}, nil
}

// InsertOrReplace stores v whether or not its key exists, without writing
// index rows: every index entry v would have must already exist, or the
// call fails with ErrValidation and nothing is written.
func (t *Table[T]) InsertOrReplace(ctx context.Context, v *T) (*Record[T], error) {
	key := t.def.key(v)
	bag, err := t.def.codec.EncodeBag(*v)
	if err != nil {
		return nil, err
	}
	for _, ix := range t.def.indexes {
		if err := t.store.index.Validate(ctx, t.indexTable(ix), ix.extract(v), key); err != nil {
			return nil, err
		}
	}

	created, row, err := t.store.repo.CreateOrGet(ctx, t.def.name, key, table.Put(bag))
	if err != nil {
		return nil, err
	}
	if !created {
		row, err = t.store.repo.Update(ctx, t.def.name, key, table.Put(bag))
		if err != nil {
			return nil, err
		}
	}
	return &Record[T]{Key: key, ETag: row.ETag, Timestamp: row.Timestamp, Value: v}, nil
}

// Delete removes the record at key along with its index entries.
func (t *Table[T]) Delete(ctx context.Context, key cell.Key) (*Record[T], error) {
	rec, err := t.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	undo := saga.None()
	for _, ix := range t.def.indexes {
		c, err := t.store.index.Delete(ctx, t.indexTable(ix), ix.extract(rec.Value), key)
		if err != nil {
			return nil, t.store.abort(ctx, t.def.name, undo, err)
		}
		undo = undo.Then(c)
	}

	if _, err := t.store.repo.Delete(ctx, t.def.name, key); err != nil {
		return nil, t.store.abort(ctx, t.def.name, undo, err)
	}
	return rec, nil
}

// Lookup returns the records indexed under the keys field's extractor
// computes for probe. Only the fields the extractor reads need be set.
func (t *Table[T]) Lookup(ctx context.Context, field string, probe *T) ([]*Record[T], error) {
	ix, err := t.lookupIndex(field)
	if err != nil {
		return nil, err
	}
	return t.lookupKeys(ctx, ix, ix.extract(probe))
}

// LookupKey returns the records listed in the index row at key.
func (t *Table[T]) LookupKey(ctx context.Context, field string, key cell.Key) ([]*Record[T], error) {
	ix, err := t.lookupIndex(field)
	if err != nil {
		return nil, err
	}
	return t.lookupKeys(ctx, ix, []cell.Key{key})
}

// lookupKeys reads the index rows at keys and loads their members.
// Members whose primary row is gone are skipped.
func (t *Table[T]) lookupKeys(ctx context.Context, ix *typedIndex[T], keys []cell.Key) ([]*Record[T], error) {
	var members []cell.Key
	for _, key := range keys {
		row, err := t.store.index.Get(ctx, t.indexTable(ix), key)
		if errors.Is(err, table.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		members = append(members, row.Members...)
	}

	var recs []*Record[T]
	for _, member := range lookup.Dedup(members) {
		rec, err := t.Get(ctx, member)
		if errors.Is(err, table.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// CascadeDelete deletes the index row at key of field along with every
// record it lists, and removes those records from the table's other index
// rows. It returns the deleted records.
func (t *Table[T]) CascadeDelete(ctx context.Context, field string, key cell.Key) ([]*Record[T], error) {
	ix, err := t.lookupIndex(field)
	if err != nil {
		return nil, err
	}

	rows, undo, err := t.store.index.CascadeDelete(ctx, t.indexTable(ix), key, t.def.name)
	if err != nil {
		return nil, err
	}

	recs := make([]*Record[T], 0, len(rows))
	for _, row := range rows {
		rec, err := t.decode(row)
		if err != nil {
			return nil, t.store.abort(ctx, t.def.name, undo, err)
		}
		recs = append(recs, rec)

		for _, other := range t.def.indexes {
			keys := other.extract(rec.Value)
			if other == ix {
				keys = slices.DeleteFunc(keys, func(k cell.Key) bool { return k == key })
			}
			c, err := t.store.index.Delete(ctx, t.indexTable(other), keys, row.Key)
			if err != nil {
				return nil, t.store.abort(ctx, t.def.name, undo, err)
			}
			undo = undo.Then(c)
		}
	}

	t.store.config.Logger.Info("cascade delete completed",
		"table", t.def.name,
		"index", field,
		"key", key,
		"deleted", len(recs),
	)
	return recs, nil
}
