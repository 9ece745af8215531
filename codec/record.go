package codec

import (
	"strings"

	"github.com/jacentio/lattice/cell"
)

// Sidecar column names used when array elements carry their own row identity.
const (
	RowKeyColumn       = "_rowKey_"
	PartitionKeyColumn = "_partitionKey_"
)

// Field is one persisted property of a record of type T.
type Field[T any] interface {
	Name() string
	overflowEligible() bool
	encode(prefix string, v *T, bag cell.Bag) error
	decode(prefix string, v *T, bag cell.Bag) error
	prepareColumn()
	encodeColumn(prefix string, rows []T, bag cell.Bag) error
	// readColumn returns a function copying the decoded column into rows and
	// the column length, or -1 when the column is absent.
	readColumn(prefix string, bag cell.Bag) (func(rows []T), int, error)
}

// Property is a Field bound to an accessor returning a pointer to the
// property inside the record.
type Property[T, F any] struct {
	name     string
	get      func(*T) *F
	codec    Codec[F]
	column   Codec[[]F]
	overflow bool
}

// Prop declares a persisted property stored under name and encoded by c.
func Prop[T, F any](name string, get func(*T) *F, c Codec[F]) *Property[T, F] {
	if name == "" || strings.Contains(name, Separator) {
		unsupported("property name %q", name)
	}
	return &Property[T, F]{name: name, get: get, codec: c}
}

// Overflow marks the property as overflow-eligible: binary cells above
// OverflowThreshold are split into chunk cells instead of failing.
func (p *Property[T, F]) Overflow() *Property[T, F] {
	p.overflow = true
	return p
}

func (p *Property[T, F]) Name() string           { return p.name }
func (p *Property[T, F]) overflowEligible() bool { return p.overflow }

func (p *Property[T, F]) encode(prefix string, v *T, bag cell.Bag) error {
	return p.codec.Encode(join(prefix, p.name), *p.get(v), bag)
}

func (p *Property[T, F]) decode(prefix string, v *T, bag cell.Bag) error {
	x, err := p.codec.Decode(join(prefix, p.name), bag)
	if err != nil {
		return err
	}
	*p.get(v) = x
	return nil
}

func (p *Property[T, F]) prepareColumn() {
	if p.column == nil {
		p.column = Array(p.codec)
	}
}

func (p *Property[T, F]) encodeColumn(prefix string, rows []T, bag cell.Bag) error {
	vals := make([]F, len(rows))
	for i := range rows {
		vals[i] = *p.get(&rows[i])
	}
	return p.column.Encode(join(prefix, p.name), vals, bag)
}

func (p *Property[T, F]) readColumn(prefix string, bag cell.Bag) (func([]T), int, error) {
	vals, err := p.column.Decode(join(prefix, p.name), bag)
	if err != nil || vals == nil {
		return nil, -1, err
	}
	return func(rows []T) {
		for i := range rows {
			*p.get(&rows[i]) = vals[i]
		}
	}, len(vals), nil
}

// RecordCodec encodes a record as one cell group per declared property.
type RecordCodec[T any] struct {
	fields []Field[T]
	keyOf  func(*T) *cell.Key
	cols   columns
	keyCol Codec[[]string]
}

// Record declares a record codec. Property names must be unique.
func Record[T any](fields ...Field[T]) *RecordCodec[T] {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name()] {
			unsupported("duplicate property %q", f.Name())
		}
		seen[f.Name()] = true
	}
	return &RecordCodec[T]{fields: fields}
}

// Keyed declares that records carry their own row identity. Nested records
// and array elements then store the key in RowKeyColumn and
// PartitionKeyColumn sidecar cells; top-level records leave it to the row.
func (rc *RecordCodec[T]) Keyed(get func(*T) *cell.Key) *RecordCodec[T] {
	rc.keyOf = get
	return rc
}

// Fields returns the declared properties.
func (rc *RecordCodec[T]) Fields() []Field[T] {
	return rc.fields
}

func (rc *RecordCodec[T]) Encode(name string, v T, bag cell.Bag) error {
	for _, f := range rc.fields {
		if err := f.encode(name, &v, bag); err != nil {
			return err
		}
	}
	if rc.keyOf != nil && name != "" {
		k := rc.keyOf(&v)
		bag[join(name, RowKeyColumn)] = cell.String(k.RowKey)
		bag[join(name, PartitionKeyColumn)] = cell.String(k.PartitionKey)
	}
	return nil
}

func (rc *RecordCodec[T]) Decode(name string, bag cell.Bag) (T, error) {
	var v T
	for _, f := range rc.fields {
		if err := f.decode(name, &v, bag); err != nil {
			return v, err
		}
	}
	if rc.keyOf != nil && name != "" {
		k := rc.keyOf(&v)
		var err error
		if k.RowKey, err = String().Decode(join(name, RowKeyColumn), bag); err != nil {
			return v, err
		}
		if k.PartitionKey, err = String().Decode(join(name, PartitionKeyColumn), bag); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (rc *RecordCodec[T]) prepareColumns() {
	rc.cols.prepare(func() {
		for _, f := range rc.fields {
			f.prepareColumn()
		}
		rc.keyCol = Array(String())
	})
}

func (rc *RecordCodec[T]) encodeColumn(name string, rows []T, bag cell.Bag) error {
	for _, f := range rc.fields {
		if err := f.encodeColumn(name, rows, bag); err != nil {
			return err
		}
	}
	if rc.keyOf == nil {
		return nil
	}
	rowKeys := make([]string, len(rows))
	partKeys := make([]string, len(rows))
	for i := range rows {
		k := rc.keyOf(&rows[i])
		rowKeys[i], partKeys[i] = k.RowKey, k.PartitionKey
	}
	if err := rc.keyCol.Encode(join(name, RowKeyColumn), rowKeys, bag); err != nil {
		return err
	}
	return rc.keyCol.Encode(join(name, PartitionKeyColumn), partKeys, bag)
}

func (rc *RecordCodec[T]) decodeColumn(name string, bag cell.Bag) ([]T, error) {
	fills := make([]func([]T), 0, len(rc.fields)+2)
	lens := make([]int, 0, len(rc.fields)+2)
	for _, f := range rc.fields {
		fill, n, err := f.readColumn(name, bag)
		if err != nil {
			return nil, err
		}
		if fill != nil {
			fills = append(fills, fill)
		}
		lens = append(lens, n)
	}
	if rc.keyOf != nil {
		rowKeys, err := rc.keyCol.Decode(join(name, RowKeyColumn), bag)
		if err != nil {
			return nil, err
		}
		partKeys, err := rc.keyCol.Decode(join(name, PartitionKeyColumn), bag)
		if err != nil {
			return nil, err
		}
		lens = append(lens, lenOrAbsent(rowKeys), lenOrAbsent(partKeys))
		fills = append(fills, func(rows []T) {
			for i := range rows {
				k := rc.keyOf(&rows[i])
				if rowKeys != nil {
					k.RowKey = rowKeys[i]
				}
				if partKeys != nil {
					k.PartitionKey = partKeys[i]
				}
			}
		})
	}
	n := minLen(lens...)
	if n < 0 {
		return nil, nil
	}
	rows := make([]T, n)
	for _, fill := range fills {
		fill(rows)
	}
	return rows, nil
}

// EncodeBag encodes v as a top-level row body, splitting oversized cells of
// overflow-eligible properties into chunk cells.
func (rc *RecordCodec[T]) EncodeBag(v T) (cell.Bag, error) {
	bag := make(cell.Bag, len(rc.fields))
	if err := rc.Encode("", v, bag); err != nil {
		return nil, err
	}
	if err := SplitOverflow(bag, rc.overflowEligible); err != nil {
		return nil, err
	}
	return bag, nil
}

// DecodeBag reassembles overflow chunks and decodes a top-level row body.
// The given bag is not modified.
func (rc *RecordCodec[T]) DecodeBag(bag cell.Bag) (T, error) {
	if HasOverflow(bag) {
		bag = bag.Clone()
		if err := JoinOverflow(bag, rc.overflowEligible); err != nil {
			var zero T
			return zero, err
		}
	}
	return rc.Decode("", bag)
}

func (rc *RecordCodec[T]) overflowEligible(cellName string) bool {
	for _, f := range rc.fields {
		if !f.overflowEligible() {
			continue
		}
		if cellName == f.Name() || strings.HasPrefix(cellName, f.Name()+Separator) {
			return true
		}
	}
	return false
}
