package codec

import (
	"errors"
	"fmt"

	"github.com/jacentio/lattice/cell"
)

var (
	// ErrDecode is matched by every decode failure: a cell of the wrong kind,
	// a malformed frame, or missing structural sibling cells.
	ErrDecode = errors.New("codec: decode failure")

	// ErrCellTooLarge is returned when a binary cell exceeds OverflowThreshold
	// and its property was not declared overflow-eligible.
	ErrCellTooLarge = errors.New("codec: cell exceeds size limit")

	// ErrEnumValue is returned when encoding a value that is not a declared
	// enum member.
	ErrEnumValue = errors.New("codec: value is not an enum member")
)

// DecodeError reports a cell that is present but cannot be decoded.
type DecodeError struct {
	Cell string
	Want cell.Kind
	Got  cell.Kind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	var msg string
	if e.Msg != "" {
		msg = fmt.Sprintf("codec: cell %q: %s", e.Cell, e.Msg)
	} else {
		msg = fmt.Sprintf("codec: cell %q: expected %v, got %v", e.Cell, e.Want, e.Got)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func kindErr(name string, want cell.Kind, got cell.Cell) error {
	return &DecodeError{Cell: name, Want: want, Got: got.Kind()}
}

func cellErrf(name string, err error, format string, args ...any) error {
	return &DecodeError{Cell: name, Msg: fmt.Sprintf(format, args...), Err: err}
}

// DataError reports a malformed length-framed payload.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error { return e.Err }

func (e *DataError) Is(target error) bool { return target == ErrDecode }

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		}
		return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
	}
	p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
	if e.Err != nil {
		return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
	}
	return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
}

// UnsupportedError is raised, by panic, when codecs are combined into a shape
// that has no cell layout, e.g. an array of arrays of records.
type UnsupportedError struct {
	Shape string
}

func (e *UnsupportedError) Error() string {
	return "codec: unsupported shape: " + e.Shape
}

func unsupported(format string, args ...any) {
	panic(&UnsupportedError{Shape: fmt.Sprintf(format, args...)})
}
