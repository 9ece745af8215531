package store

import (
	"time"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/codec"
	"github.com/jacentio/lattice/lookup"
)

// KeyFunc returns the primary key of a record.
type KeyFunc[T any] func(v *T) cell.Key

// Record is a stored record with its row metadata.
type Record[T any] struct {
	Key cell.Key

	// ETag is the row version; pass it to Table.Update to detect
	// concurrent modification.
	ETag int64

	// Timestamp is the time of the last committed write.
	Timestamp time.Time

	Value *T
}

// IndexOption configures an index declaration.
type IndexOption func(*indexDef)

// IndexTable stores the index in the named table instead of the default
// {table}{field}.
func IndexTable(name string) IndexOption {
	return func(d *indexDef) {
		d.table = name
	}
}

type indexDef struct {
	field string
	table string
}

type typedIndex[T any] struct {
	indexDef
	extract lookup.Extractor[T]
}

// TableDef declares a record table: its name, codec, primary key and
// secondary indices.
//
//	users := store.DefineTable("User", userCodec, userKey).
//		Index("Name", lookup.Field(func(u *User) string { return u.Name },
//			lookup.Text(lookup.HashPrefix(2)).IgnoreZero()))
type TableDef[T any] struct {
	name    string
	codec   *codec.RecordCodec[T]
	key     KeyFunc[T]
	indexes []*typedIndex[T]
}

// DefineTable starts a table declaration.
func DefineTable[T any](name string, c *codec.RecordCodec[T], key KeyFunc[T]) *TableDef[T] {
	return &TableDef[T]{name: name, codec: c, key: key}
}

// Index declares a secondary index on field. Field names must be unique
// within the table; a repeated name panics.
func (d *TableDef[T]) Index(field string, extract lookup.Extractor[T], opts ...IndexOption) *TableDef[T] {
	if d.index(field) != nil {
		panic("store: duplicate index " + d.name + "." + field)
	}
	ix := &typedIndex[T]{indexDef: indexDef{field: field}, extract: extract}
	for _, opt := range opts {
		opt(&ix.indexDef)
	}
	d.indexes = append(d.indexes, ix)
	return d
}

func (d *TableDef[T]) index(field string) *typedIndex[T] {
	for _, ix := range d.indexes {
		if ix.field == field {
			return ix
		}
	}
	return nil
}

// Name returns the table name.
func (d *TableDef[T]) Name() string { return d.name }

// IndexFields returns the declared index fields in declaration order.
func (d *TableDef[T]) IndexFields() []string {
	fields := make([]string, len(d.indexes))
	for i, ix := range d.indexes {
		fields[i] = ix.field
	}
	return fields
}

// Schema is the untyped view of a TableDef used by repair.
type Schema interface {
	// Name returns the table name.
	Name() string

	// IndexFields returns the declared index fields.
	IndexFields() []string

	declaredIndexTable(field string) string
	indexKeys(bag cell.Bag) (map[string][]cell.Key, error)
}

var _ Schema = (*TableDef[struct{}])(nil)

func (d *TableDef[T]) declaredIndexTable(field string) string {
	if ix := d.index(field); ix != nil {
		return ix.table
	}
	return ""
}

// indexKeys decodes a row body and computes the keys of every index.
func (d *TableDef[T]) indexKeys(bag cell.Bag) (map[string][]cell.Key, error) {
	v, err := d.codec.DecodeBag(bag)
	if err != nil {
		return nil, err
	}
	keys := make(map[string][]cell.Key, len(d.indexes))
	for _, ix := range d.indexes {
		keys[ix.field] = ix.extract(&v)
	}
	return keys, nil
}
