package codec

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
)

// Discriminators for nullable variable-length frames (strings, binary,
// nested collections).
const (
	frameValue byte = 0
	frameNull  byte = 1
	frameEmpty byte = 2
)

// Presence bytes for nullable fixed-size frames.
const (
	framePresent byte = 0
	frameAbsent  byte = 1
)

// Framer is implemented by codecs whose values can be packed into a
// length-framed binary blob. Arrays of framers are stored as one binary cell.
type Framer[T any] interface {
	AppendFrame(buf []byte, v T) ([]byte, error)
	ReadFrame(r *Reader) (T, error)
}

// nullFramer is implemented by variable-length framers that encode null in
// their own discriminator byte instead of a separate presence byte.
type nullFramer[T any] interface {
	appendNullFrame(buf []byte, v *T) ([]byte, error)
	readNullFrame(r *Reader) (*T, error)
}

// Reader consumes a length-framed payload front to back.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.off }

func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, dataErrf(r.data, r.off, io.ErrUnexpectedEOF, "need %d bytes", n)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.Next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.Next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadBlob reads a uint32 length followed by that many bytes.
func (r *Reader) ReadBlob() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return r.Next(int(n))
}

func (r *Reader) expectEnd() error {
	if r.Len() != 0 {
		return dataErrf(r.data, r.off, nil, "%d trailing bytes", r.Len())
	}
	return nil
}

func appendBlob(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendTime(buf []byte, t time.Time) []byte {
	t = t.UTC()
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Unix()))
	return binary.BigEndian.AppendUint32(buf, uint32(t.Nanosecond()))
}

func readTime(r *Reader) (time.Time, error) {
	sec, err := r.ReadUint64()
	if err != nil {
		return time.Time{}, err
	}
	nsec, err := r.ReadUint32()
	if err != nil {
		return time.Time{}, err
	}
	if nsec >= 1e9 {
		return time.Time{}, dataErrf(r.data, r.off-4, nil, "invalid nanoseconds %d", nsec)
	}
	return time.Unix(int64(sec), int64(nsec)).UTC(), nil
}

func appendFloat(buf []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
}

func readGUID(r *Reader) (uuid.UUID, error) {
	b, err := r.Next(16)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

// appendCollection writes a uint32 element count followed by each element.
func appendCollection[T any](buf []byte, f Framer[T], vs []T) ([]byte, error) {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(vs)))
	var err error
	for _, v := range vs {
		buf, err = f.AppendFrame(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func readCollection[T any](r *Reader, f Framer[T]) ([]T, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	// every frame occupies at least one byte
	if int64(n) > int64(r.Len()) {
		return nil, dataErrf(r.data, r.off, nil, "count %d exceeds remaining %d bytes", n, r.Len())
	}
	vs := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := f.ReadFrame(r)
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, nil
}

// appendVarFrame writes a discriminated, length-prefixed frame.
func appendVarFrame(buf []byte, b []byte, null bool) []byte {
	switch {
	case null:
		return append(buf, frameNull)
	case len(b) == 0:
		return append(buf, frameEmpty)
	default:
		buf = append(buf, frameValue)
		return appendBlob(buf, b)
	}
}

// readVarFrame is the inverse of appendVarFrame. A null frame returns
// (nil, true); an empty frame returns a non-nil empty slice.
func readVarFrame(r *Reader) ([]byte, bool, error) {
	off := r.off
	d, err := r.ReadByte()
	if err != nil {
		return nil, false, err
	}
	switch d {
	case frameValue:
		b, err := r.ReadBlob()
		return b, false, err
	case frameNull:
		return nil, true, nil
	case frameEmpty:
		return []byte{}, false, nil
	}
	return nil, false, dataErrf(r.data, off, nil, "invalid discriminator %d", d)
}

func readPresence(r *Reader) (bool, error) {
	off := r.off
	p, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch p {
	case framePresent:
		return true, nil
	case frameAbsent:
		return false, nil
	}
	return false, dataErrf(r.data, off, nil, "invalid presence byte %d", p)
}
