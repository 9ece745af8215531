package codec

import (
	"github.com/google/uuid"

	"github.com/jacentio/lattice/cell"
)

// Nullable returns a codec for optional values encoded by c.
//
// A set value writes a true boolean cell name+PresenceSuffix next to the
// cells written by c under name. A nil value writes nothing and decodes
// back to nil, so a present zero value and null stay distinguishable.
//
// Nesting Nullable panics: both layers would share one presence cell.
func Nullable[T any](c Codec[T]) Codec[*T] {
	if _, nested := c.(interface{ nullable() }); nested {
		unsupported("nullable of %T", c)
	}
	n := &nullableCodec[T]{inner: c}
	if nf, ok := c.(nullFramer[T]); ok {
		return &nullableVarFramer[T]{nullableCodec: n, nf: nf}
	}
	if f, ok := c.(Framer[T]); ok {
		return &nullableFramer[T]{nullableCodec: n, f: f}
	}
	return n
}

type nullableCodec[T any] struct {
	inner    Codec[T]
	cols     columns
	presence Codec[[]bool]
	values   Codec[[]T]
}

func (n *nullableCodec[T]) nullable() {}

func (n *nullableCodec[T]) Encode(name string, v *T, bag cell.Bag) error {
	if v == nil {
		return nil
	}
	bag[name+PresenceSuffix] = cell.Bool(true)
	return n.inner.Encode(name, *v, bag)
}

func (n *nullableCodec[T]) Decode(name string, bag cell.Bag) (*T, error) {
	flagName := name + PresenceSuffix
	c, ok := bag[flagName]
	if !ok {
		return nil, nil
	}
	set, ok := c.AsBool()
	if !ok {
		return nil, kindErr(flagName, cell.KindBoolean, c)
	}
	if !set {
		return nil, nil
	}
	v, err := n.inner.Decode(name, bag)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (n *nullableCodec[T]) prepareColumns() {
	n.cols.prepare(func() {
		n.presence = Array(Bool())
		n.values = Array(n.inner)
	})
}

func (n *nullableCodec[T]) encodeColumn(name string, vs []*T, bag cell.Bag) error {
	presence := make([]bool, len(vs))
	values := make([]T, len(vs))
	for i, v := range vs {
		if v != nil {
			presence[i] = true
			values[i] = *v
		}
	}
	if err := n.presence.Encode(name+PresenceSuffix, presence, bag); err != nil {
		return err
	}
	return n.values.Encode(name, values, bag)
}

func (n *nullableCodec[T]) decodeColumn(name string, bag cell.Bag) ([]*T, error) {
	presence, err := n.presence.Decode(name+PresenceSuffix, bag)
	if err != nil || presence == nil {
		return nil, err
	}
	values, err := n.values.Decode(name, bag)
	if err != nil {
		return nil, err
	}
	count := minLen(len(presence), lenOrAbsent(values))
	out := make([]*T, count)
	for i := 0; i < count; i++ {
		if !presence[i] {
			continue
		}
		var v T
		if values != nil {
			v = values[i]
		}
		out[i] = &v
	}
	return out, nil
}

// nullableFramer frames fixed-size values behind a presence byte.
type nullableFramer[T any] struct {
	*nullableCodec[T]
	f Framer[T]
}

func (n *nullableFramer[T]) AppendFrame(buf []byte, v *T) ([]byte, error) {
	if v == nil {
		return append(buf, frameAbsent), nil
	}
	return n.f.AppendFrame(append(buf, framePresent), *v)
}

func (n *nullableFramer[T]) ReadFrame(r *Reader) (*T, error) {
	present, err := readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	v, err := n.f.ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// nullableVarFramer lets strings and binary encode null in their own
// discriminator byte.
type nullableVarFramer[T any] struct {
	*nullableCodec[T]
	nf nullFramer[T]
}

func (n *nullableVarFramer[T]) AppendFrame(buf []byte, v *T) ([]byte, error) {
	return n.nf.appendNullFrame(buf, v)
}

func (n *nullableVarFramer[T]) ReadFrame(r *Reader) (*T, error) {
	return n.nf.readNullFrame(r)
}

// OptionalRef stores an optional foreign-key reference as a GUID cell that
// is absent when the reference is nil.
func OptionalRef() Codec[*uuid.UUID] { return optionalRefCodec{} }

type optionalRefCodec struct{}

func (optionalRefCodec) Encode(name string, v *uuid.UUID, bag cell.Bag) error {
	if v != nil {
		bag[name] = cell.GUID(*v)
	}
	return nil
}

func (optionalRefCodec) Decode(name string, bag cell.Bag) (*uuid.UUID, error) {
	c, ok := bag[name]
	if !ok {
		return nil, nil
	}
	id, ok := c.AsGUID()
	if !ok {
		return nil, kindErr(name, cell.KindGUID, c)
	}
	return &id, nil
}

func (optionalRefCodec) AppendFrame(buf []byte, v *uuid.UUID) ([]byte, error) {
	if v == nil {
		return append(buf, frameAbsent), nil
	}
	buf = append(buf, framePresent)
	return append(buf, v[:]...), nil
}

func (optionalRefCodec) ReadFrame(r *Reader) (*uuid.UUID, error) {
	present, err := readPresence(r)
	if err != nil || !present {
		return nil, err
	}
	id, err := readGUID(r)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// RefList stores a list of references as one binary cell holding the
// concatenated 16-byte ids.
func RefList() Codec[[]uuid.UUID] { return refListCodec{} }

type refListCodec struct{}

func packRefs(ids []uuid.UUID) []byte {
	b := make([]byte, 0, 16*len(ids))
	for _, id := range ids {
		b = append(b, id[:]...)
	}
	return b
}

func unpackRefs(b []byte) ([]uuid.UUID, bool) {
	if len(b)%16 != 0 {
		return nil, false
	}
	ids := make([]uuid.UUID, len(b)/16)
	for i := range ids {
		copy(ids[i][:], b[i*16:])
	}
	return ids, true
}

func (refListCodec) Encode(name string, v []uuid.UUID, bag cell.Bag) error {
	if v != nil {
		bag[name] = cell.Binary(packRefs(v))
	}
	return nil
}

func (refListCodec) Decode(name string, bag cell.Bag) ([]uuid.UUID, error) {
	c, ok := bag[name]
	if !ok {
		return nil, nil
	}
	b, ok := c.AsBinary()
	if !ok {
		return nil, kindErr(name, cell.KindBinary, c)
	}
	ids, ok := unpackRefs(b)
	if !ok {
		return nil, cellErrf(name, nil, "reference list length %d is not a multiple of 16", len(b))
	}
	return ids, nil
}

func (refListCodec) AppendFrame(buf []byte, v []uuid.UUID) ([]byte, error) {
	return appendVarFrame(buf, packRefs(v), v == nil), nil
}

func (refListCodec) ReadFrame(r *Reader) ([]uuid.UUID, error) {
	off := r.off
	b, null, err := readVarFrame(r)
	if err != nil || null {
		return nil, err
	}
	ids, ok := unpackRefs(b)
	if !ok {
		return nil, dataErrf(r.data, off, nil, "reference list length %d is not a multiple of 16", len(b))
	}
	return ids, nil
}
