package bolt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/table"
)

// storedRow is the msgpack form of a row. Cells are sorted by name so the
// encoding of a row is deterministic.
type storedRow struct {
	ETag      int64        `msgpack:"e"`
	Timestamp time.Time    `msgpack:"t"`
	Cells     []storedCell `msgpack:"c"`
}

type storedCell struct {
	Name string    `msgpack:"n"`
	Kind string    `msgpack:"k"`
	Bin  []byte    `msgpack:"b,omitempty"`
	Str  string    `msgpack:"s,omitempty"`
	Num  int64     `msgpack:"i,omitempty"`
	Dbl  float64   `msgpack:"d,omitempty"`
	Time time.Time `msgpack:"ts"`
}

func toStoredCell(name string, c cell.Cell) (storedCell, error) {
	sc := storedCell{Name: name, Kind: c.Kind().Code()}
	switch c.Kind() {
	case cell.KindBinary:
		sc.Bin, _ = c.AsBinary()
	case cell.KindBoolean:
		if v, _ := c.AsBool(); v {
			sc.Num = 1
		}
	case cell.KindTimestamp:
		sc.Time, _ = c.AsTime()
	case cell.KindDouble:
		sc.Dbl, _ = c.AsDouble()
	case cell.KindGUID:
		id, _ := c.AsGUID()
		sc.Bin = id[:]
	case cell.KindInt32:
		v, _ := c.AsInt32()
		sc.Num = int64(v)
	case cell.KindInt64:
		sc.Num, _ = c.AsInt64()
	case cell.KindString:
		sc.Str, _ = c.AsString()
	default:
		return sc, fmt.Errorf("bolt: cell %q has no kind", name)
	}
	return sc, nil
}

func (sc storedCell) cell() (cell.Cell, error) {
	kind, ok := cell.KindFromCode(sc.Kind)
	if !ok {
		return cell.Cell{}, fmt.Errorf("bolt: cell %q: unknown kind %q", sc.Name, sc.Kind)
	}
	switch kind {
	case cell.KindBinary:
		return cell.Binary(sc.Bin), nil
	case cell.KindBoolean:
		return cell.Bool(sc.Num != 0), nil
	case cell.KindTimestamp:
		return cell.Timestamp(sc.Time), nil
	case cell.KindDouble:
		return cell.Double(sc.Dbl), nil
	case cell.KindGUID:
		id, err := uuid.FromBytes(sc.Bin)
		if err != nil {
			return cell.Cell{}, fmt.Errorf("bolt: cell %q: %w", sc.Name, err)
		}
		return cell.GUID(id), nil
	case cell.KindInt32:
		return cell.Int32(int32(sc.Num)), nil
	case cell.KindInt64:
		return cell.Int64(sc.Num), nil
	default:
		return cell.String(sc.Str), nil
	}
}

func encodeRow(row *table.Row) ([]byte, error) {
	sr := storedRow{ETag: row.ETag, Timestamp: row.Timestamp}
	for _, name := range row.Cells.Names() {
		sc, err := toStoredCell(name, row.Cells[name])
		if err != nil {
			return nil, err
		}
		sr.Cells = append(sr.Cells, sc)
	}

	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	err := enc.Encode(&sr)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("bolt: encode row %v: %w", row.Key, err)
	}
	return buf.Bytes(), nil
}

func decodeRow(key cell.Key, raw []byte) (*table.Row, error) {
	var sr storedRow
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(raw))
	err := dec.Decode(&sr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("bolt: decode row %v: %w", key, err)
	}

	row := &table.Row{
		Key:       key,
		ETag:      sr.ETag,
		Timestamp: sr.Timestamp.UTC(),
		Cells:     make(cell.Bag, len(sr.Cells)),
	}
	for _, sc := range sr.Cells {
		c, err := sc.cell()
		if err != nil {
			return nil, err
		}
		row.Cells[sc.Name] = c
	}
	return row, nil
}
