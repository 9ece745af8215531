// Package codec converts structured values to and from flat property bags.
//
// Codecs are built from an explicit, closed set of constructors (scalars,
// references, enums, nullables, pairs, dictionaries, arrays and records)
// rather than by runtime type inspection, so the cell layout of every type
// is fixed when the codec is constructed. Combining codecs into a shape that
// has no layout panics with an [UnsupportedError] at construction time.
//
// Cell names of nested members are joined with [Separator]:
//
//	Address            -> Address__Street, Address__City
//	Tags (dictionary)  -> Tags__keys, Tags__values
//	Score (nullable)   -> Score____Value (presence), Score
//
// Arrays of framed values (scalars, strings, references, pairs of framed
// values) are packed into a single binary cell using a length-framed
// collection encoding. Arrays of records are transposed into one array cell
// per field.
package codec

import (
	"sync"

	"github.com/jacentio/lattice/cell"
)

const (
	// Separator joins a parent cell name and a member name.
	Separator = "__"

	// PresenceSuffix names the boolean cell that marks a nullable value as set.
	PresenceSuffix = "____Value"
)

// Codec encodes values of type T into cells named after name, and back.
//
// Decode returns the zero value when the cells for name are absent.
type Codec[T any] interface {
	Encode(name string, v T, bag cell.Bag) error
	Decode(name string, bag cell.Bag) (T, error)
}

// columnar is implemented by codecs that store arrays of their values as
// parallel per-member arrays.
type columnar[T any] interface {
	Codec[T]
	prepareColumns()
	encodeColumn(name string, vs []T, bag cell.Bag) error
	// decodeColumn returns nil when no column cells are present.
	decodeColumn(name string, bag cell.Bag) ([]T, error)
}

func join(name, member string) string {
	if name == "" {
		return member
	}
	return name + Separator + member
}

// Array returns a codec for slices of values encoded by c.
//
// Framed element codecs produce one binary cell. Record, pair and nullable
// element codecs that are not framed produce transposed column cells. A nil
// slice writes no cells; an empty slice writes empty collections so that it
// decodes back to an empty, non-nil slice.
func Array[T any](c Codec[T]) Codec[[]T] {
	if f, ok := c.(Framer[T]); ok {
		return &packedCodec[T]{elem: f}
	}
	if col, ok := c.(columnar[T]); ok {
		col.prepareColumns()
		return &columnCodec[T]{elem: col}
	}
	unsupported("array of %T", c)
	return nil
}

// packedCodec stores a slice in one binary cell.
type packedCodec[T any] struct {
	elem Framer[T]
}

func (c *packedCodec[T]) Encode(name string, vs []T, bag cell.Bag) error {
	if vs == nil {
		return nil
	}
	buf, err := appendCollection(make([]byte, 0, 4+len(vs)*8), c.elem, vs)
	if err != nil {
		return err
	}
	bag[name] = cell.Binary(buf)
	return nil
}

func (c *packedCodec[T]) Decode(name string, bag cell.Bag) ([]T, error) {
	v, ok := bag[name]
	if !ok {
		return nil, nil
	}
	b, ok := v.AsBinary()
	if !ok {
		return nil, kindErr(name, cell.KindBinary, v)
	}
	r := NewReader(b)
	vs, err := readCollection(r, c.elem)
	if err == nil {
		err = r.expectEnd()
	}
	if err != nil {
		return nil, cellErrf(name, err, "malformed collection")
	}
	return vs, nil
}

// AppendFrame nests a whole collection inside an outer frame.
func (c *packedCodec[T]) AppendFrame(buf []byte, vs []T) ([]byte, error) {
	if vs == nil {
		return append(buf, frameNull), nil
	}
	if len(vs) == 0 {
		return append(buf, frameEmpty), nil
	}
	inner, err := appendCollection(nil, c.elem, vs)
	if err != nil {
		return nil, err
	}
	return appendVarFrame(buf, inner, false), nil
}

func (c *packedCodec[T]) ReadFrame(r *Reader) ([]T, error) {
	b, null, err := readVarFrame(r)
	if err != nil || null {
		return nil, err
	}
	if len(b) == 0 {
		return []T{}, nil
	}
	inner := NewReader(b)
	vs, err := readCollection(inner, c.elem)
	if err != nil {
		return nil, err
	}
	return vs, inner.expectEnd()
}

// columnCodec stores a slice as the transposed columns of its element codec.
type columnCodec[T any] struct {
	elem columnar[T]
}

func (c *columnCodec[T]) Encode(name string, vs []T, bag cell.Bag) error {
	if vs == nil {
		return nil
	}
	return c.elem.encodeColumn(name, vs, bag)
}

func (c *columnCodec[T]) Decode(name string, bag cell.Bag) ([]T, error) {
	return c.elem.decodeColumn(name, bag)
}

// columns lazily builds the array codecs a columnar codec needs for its
// members. Construction panics surface on the first Array call.
type columns struct {
	once sync.Once
}

func (cs *columns) prepare(fn func()) {
	cs.once.Do(fn)
}

// minLen returns the shortest of the given column lengths, ignoring absent
// columns (negative lengths). It returns -1 when every column is absent.
// Ragged tails beyond the shortest column are discarded.
func minLen(lens ...int) int {
	n := -1
	for _, l := range lens {
		if l < 0 {
			continue
		}
		if n < 0 || l < n {
			n = l
		}
	}
	return n
}

func lenOrAbsent[T any](vs []T) int {
	if vs == nil {
		return -1
	}
	return len(vs)
}
