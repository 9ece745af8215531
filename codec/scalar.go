package codec

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/lattice/cell"
)

// scalar maps a Go type onto one cell kind and a fixed frame encoding.
type scalar[T any] struct {
	kind   cell.Kind
	to     func(T) cell.Cell
	from   func(cell.Cell) (T, bool)
	append func([]byte, T) []byte
	read   func(*Reader) (T, error)
}

func (s *scalar[T]) Encode(name string, v T, bag cell.Bag) error {
	bag[name] = s.to(v)
	return nil
}

func (s *scalar[T]) Decode(name string, bag cell.Bag) (T, error) {
	var zero T
	c, ok := bag[name]
	if !ok {
		return zero, nil
	}
	v, ok := s.from(c)
	if !ok {
		return zero, kindErr(name, s.kind, c)
	}
	return v, nil
}

func (s *scalar[T]) AppendFrame(buf []byte, v T) ([]byte, error) {
	return s.append(buf, v), nil
}

func (s *scalar[T]) ReadFrame(r *Reader) (T, error) {
	return s.read(r)
}

var (
	boolCodec = &scalar[bool]{
		kind: cell.KindBoolean,
		to:   cell.Bool,
		from: cell.Cell.AsBool,
		append: func(buf []byte, v bool) []byte {
			if v {
				return append(buf, 1)
			}
			return append(buf, 0)
		},
		read: func(r *Reader) (bool, error) {
			b, err := r.ReadByte()
			return b != 0, err
		},
	}
	int32Codec = &scalar[int32]{
		kind: cell.KindInt32,
		to:   cell.Int32,
		from: cell.Cell.AsInt32,
		append: func(buf []byte, v int32) []byte {
			return binary.BigEndian.AppendUint32(buf, uint32(v))
		},
		read: func(r *Reader) (int32, error) {
			v, err := r.ReadUint32()
			return int32(v), err
		},
	}
	int64Codec = &scalar[int64]{
		kind: cell.KindInt64,
		to:   cell.Int64,
		from: cell.Cell.AsInt64,
		append: func(buf []byte, v int64) []byte {
			return binary.BigEndian.AppendUint64(buf, uint64(v))
		},
		read: func(r *Reader) (int64, error) {
			v, err := r.ReadUint64()
			return int64(v), err
		},
	}
	intCodec = &scalar[int]{
		kind: cell.KindInt64,
		to:   func(v int) cell.Cell { return cell.Int64(int64(v)) },
		from: func(c cell.Cell) (int, bool) {
			v, ok := c.AsInt64()
			return int(v), ok
		},
		append: func(buf []byte, v int) []byte {
			return binary.BigEndian.AppendUint64(buf, uint64(v))
		},
		read: func(r *Reader) (int, error) {
			v, err := r.ReadUint64()
			return int(v), err
		},
	}
	float64Codec = &scalar[float64]{
		kind:   cell.KindDouble,
		to:     cell.Double,
		from:   cell.Cell.AsDouble,
		append: appendFloat,
		read: func(r *Reader) (float64, error) {
			v, err := r.ReadUint64()
			return math.Float64frombits(v), err
		},
	}
	guidCodec = &scalar[uuid.UUID]{
		kind: cell.KindGUID,
		to:   cell.GUID,
		from: cell.Cell.AsGUID,
		append: func(buf []byte, v uuid.UUID) []byte {
			return append(buf, v[:]...)
		},
		read: readGUID,
	}
	timeCodec = &scalar[time.Time]{
		kind:   cell.KindTimestamp,
		to:     cell.Timestamp,
		from:   cell.Cell.AsTime,
		append: appendTime,
		read:   readTime,
	}
)

func Bool() Codec[bool]       { return boolCodec }
func Int32() Codec[int32]     { return int32Codec }
func Int64() Codec[int64]     { return int64Codec }
func Float64() Codec[float64] { return float64Codec }
func GUID() Codec[uuid.UUID]  { return guidCodec }
func Time() Codec[time.Time]  { return timeCodec }

// Int stores a Go int in an Int64 cell.
func Int() Codec[int] { return intCodec }

// Ref stores a foreign-key reference to another record's id.
func Ref() Codec[uuid.UUID] { return guidCodec }

// stringCodec stores strings. Inside frames the empty string and null are
// distinguished by the discriminator byte.
type stringCodec struct{}

func String() Codec[string] { return stringCodec{} }

func (stringCodec) Encode(name string, v string, bag cell.Bag) error {
	bag[name] = cell.String(v)
	return nil
}

func (stringCodec) Decode(name string, bag cell.Bag) (string, error) {
	c, ok := bag[name]
	if !ok {
		return "", nil
	}
	v, ok := c.AsString()
	if !ok {
		return "", kindErr(name, cell.KindString, c)
	}
	return v, nil
}

func (stringCodec) AppendFrame(buf []byte, v string) ([]byte, error) {
	return appendVarFrame(buf, []byte(v), false), nil
}

func (stringCodec) ReadFrame(r *Reader) (string, error) {
	b, _, err := readVarFrame(r)
	return string(b), err
}

func (stringCodec) appendNullFrame(buf []byte, v *string) ([]byte, error) {
	if v == nil {
		return appendVarFrame(buf, nil, true), nil
	}
	return appendVarFrame(buf, []byte(*v), false), nil
}

func (stringCodec) readNullFrame(r *Reader) (*string, error) {
	b, null, err := readVarFrame(r)
	if err != nil || null {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// binaryCodec stores byte slices. A nil slice writes no cell; an empty one
// writes an empty binary cell.
type binaryCodec struct{}

func Binary() Codec[[]byte] { return binaryCodec{} }

func (binaryCodec) Encode(name string, v []byte, bag cell.Bag) error {
	if v == nil {
		return nil
	}
	bag[name] = cell.Binary(v)
	return nil
}

func (binaryCodec) Decode(name string, bag cell.Bag) ([]byte, error) {
	c, ok := bag[name]
	if !ok {
		return nil, nil
	}
	v, ok := c.AsBinary()
	if !ok {
		return nil, kindErr(name, cell.KindBinary, c)
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (binaryCodec) AppendFrame(buf []byte, v []byte) ([]byte, error) {
	return appendVarFrame(buf, v, v == nil), nil
}

func (binaryCodec) ReadFrame(r *Reader) ([]byte, error) {
	b, null, err := readVarFrame(r)
	if err != nil || null {
		return nil, err
	}
	return append([]byte{}, b...), nil
}

func (binaryCodec) appendNullFrame(buf []byte, v *[]byte) ([]byte, error) {
	if v == nil {
		return appendVarFrame(buf, nil, true), nil
	}
	return appendVarFrame(buf, *v, *v == nil), nil
}

func (c binaryCodec) readNullFrame(r *Reader) (*[]byte, error) {
	b, err := c.ReadFrame(r)
	if err != nil || b == nil {
		return nil, err
	}
	return &b, nil
}
