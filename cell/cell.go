// Package cell defines the scalar cell model of the wide-column store.
//
// A row is a [Bag]: a flat map of cell names to typed [Cell] values. A [Cell]
// holds exactly one of the kinds the backing store can hold natively. An
// absent map entry is distinct from a present cell holding a zero value.
package cell

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the scalar type held by a Cell.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBinary
	KindBoolean
	KindTimestamp
	KindDouble
	KindGUID
	KindInt32
	KindInt64
	KindString
)

var kindNames = [...]string{
	KindInvalid:   "invalid",
	KindBinary:    "binary",
	KindBoolean:   "boolean",
	KindTimestamp: "timestamp",
	KindDouble:    "double",
	KindGUID:      "guid",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindString:    "string",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Code returns the single-letter code used when a backend has to persist the
// kind next to a value it cannot type natively.
func (k Kind) Code() string {
	switch k {
	case KindBinary:
		return "B"
	case KindBoolean:
		return "Z"
	case KindTimestamp:
		return "T"
	case KindDouble:
		return "D"
	case KindGUID:
		return "G"
	case KindInt32:
		return "I"
	case KindInt64:
		return "L"
	case KindString:
		return "S"
	}
	return ""
}

// KindFromCode is the inverse of Kind.Code.
func KindFromCode(code string) (Kind, bool) {
	switch code {
	case "B":
		return KindBinary, true
	case "Z":
		return KindBoolean, true
	case "T":
		return KindTimestamp, true
	case "D":
		return KindDouble, true
	case "G":
		return KindGUID, true
	case "I":
		return KindInt32, true
	case "L":
		return KindInt64, true
	case "S":
		return KindString, true
	}
	return KindInvalid, false
}

// Cell is one typed scalar value. The zero Cell is invalid.
type Cell struct {
	kind Kind
	bin  []byte
	str  string
	num  int64
	dbl  float64
	guid uuid.UUID
	ts   time.Time
}

func Binary(v []byte) Cell       { return Cell{kind: KindBinary, bin: v} }
func Bool(v bool) Cell           { return Cell{kind: KindBoolean, num: b2i(v)} }
func Double(v float64) Cell      { return Cell{kind: KindDouble, dbl: v} }
func GUID(v uuid.UUID) Cell      { return Cell{kind: KindGUID, guid: v} }
func Int32(v int32) Cell         { return Cell{kind: KindInt32, num: int64(v)} }
func Int64(v int64) Cell         { return Cell{kind: KindInt64, num: v} }
func String(v string) Cell       { return Cell{kind: KindString, str: v} }
func Timestamp(v time.Time) Cell { return Cell{kind: KindTimestamp, ts: v.UTC()} }

func b2i(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// Kind returns the kind of the cell.
func (c Cell) Kind() Kind { return c.kind }

// IsValid reports whether c was built by one of the constructors.
func (c Cell) IsValid() bool { return c.kind != KindInvalid }

func (c Cell) AsBinary() ([]byte, bool)  { return c.bin, c.kind == KindBinary }
func (c Cell) AsBool() (bool, bool)      { return c.num != 0, c.kind == KindBoolean }
func (c Cell) AsDouble() (float64, bool) { return c.dbl, c.kind == KindDouble }
func (c Cell) AsGUID() (uuid.UUID, bool) { return c.guid, c.kind == KindGUID }
func (c Cell) AsInt32() (int32, bool)    { return int32(c.num), c.kind == KindInt32 }
func (c Cell) AsInt64() (int64, bool)    { return c.num, c.kind == KindInt64 }
func (c Cell) AsString() (string, bool)  { return c.str, c.kind == KindString }
func (c Cell) AsTime() (time.Time, bool) { return c.ts, c.kind == KindTimestamp }

// Size approximates the payload size of the cell in bytes.
func (c Cell) Size() int {
	switch c.kind {
	case KindBinary:
		return len(c.bin)
	case KindString:
		return len(c.str)
	case KindGUID:
		return 16
	case KindBoolean:
		return 1
	case KindInt32:
		return 4
	default:
		return 8
	}
}

// Equal reports whether both cells have the same kind and value.
func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindBinary:
		return bytes.Equal(c.bin, o.bin)
	case KindString:
		return c.str == o.str
	case KindDouble:
		return c.dbl == o.dbl
	case KindGUID:
		return c.guid == o.guid
	case KindTimestamp:
		return c.ts.Equal(o.ts)
	default:
		return c.num == o.num
	}
}

func (c Cell) String() string {
	switch c.kind {
	case KindBinary:
		if len(c.bin) > 32 {
			return fmt.Sprintf("binary(%d)%x...", len(c.bin), c.bin[:32])
		}
		return fmt.Sprintf("binary(%d)%x", len(c.bin), c.bin)
	case KindBoolean:
		return fmt.Sprintf("%v", c.num != 0)
	case KindTimestamp:
		return c.ts.Format(time.RFC3339Nano)
	case KindDouble:
		return fmt.Sprintf("%g", c.dbl)
	case KindGUID:
		return c.guid.String()
	case KindInt32, KindInt64:
		return fmt.Sprintf("%d", c.num)
	case KindString:
		return fmt.Sprintf("%q", c.str)
	}
	return "invalid"
}
