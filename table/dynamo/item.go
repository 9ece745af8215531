package dynamo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/table"
)

// Attribute names managed by the repository. Cells may not use them.
const (
	AttrPartitionKey = "PartitionKey"
	AttrRowKey       = "RowKey"
	AttrETag         = "ETag"
	AttrTimestamp    = "Timestamp"
	AttrKinds        = "_kinds"
	AttrTTL          = "ttl"
)

// ErrReservedName is returned when a cell is named after a managed attribute.
var ErrReservedName = errors.New("dynamo: cell name is reserved")

func reserved(name string) bool {
	switch name {
	case AttrPartitionKey, AttrRowKey, AttrETag, AttrTimestamp, AttrKinds, AttrTTL:
		return true
	}
	return false
}

// KeyAttributes returns the primary key attributes of key.
func KeyAttributes(key cell.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPartitionKey: &types.AttributeValueMemberS{Value: key.PartitionKey},
		AttrRowKey:       &types.AttributeValueMemberS{Value: key.RowKey},
	}
}

// EncodeItem converts row to a DynamoDB item. Every cell becomes one
// attribute; the _kinds map records each cell's kind code so that numeric,
// id and timestamp cells decode to their original kinds.
func EncodeItem(row *table.Row) (map[string]types.AttributeValue, error) {
	item := KeyAttributes(row.Key)
	item[AttrETag] = &types.AttributeValueMemberN{Value: strconv.FormatInt(row.ETag, 10)}
	item[AttrTimestamp] = &types.AttributeValueMemberS{Value: row.Timestamp.UTC().Format(time.RFC3339Nano)}

	kinds := make(map[string]string, len(row.Cells))
	for name, c := range row.Cells {
		if reserved(name) {
			return nil, fmt.Errorf("%w: %q", ErrReservedName, name)
		}
		av, err := encodeCell(c)
		if err != nil {
			return nil, fmt.Errorf("dynamo: cell %q: %w", name, err)
		}
		item[name] = av
		kinds[name] = c.Kind().Code()
	}

	kindsAttr, err := attributevalue.Marshal(kinds)
	if err != nil {
		return nil, fmt.Errorf("marshal kinds: %w", err)
	}
	item[AttrKinds] = kindsAttr
	return item, nil
}

func encodeCell(c cell.Cell) (types.AttributeValue, error) {
	switch c.Kind() {
	case cell.KindBinary:
		b, _ := c.AsBinary()
		if b == nil {
			b = []byte{}
		}
		return &types.AttributeValueMemberB{Value: b}, nil
	case cell.KindBoolean:
		v, _ := c.AsBool()
		return &types.AttributeValueMemberBOOL{Value: v}, nil
	case cell.KindTimestamp:
		t, _ := c.AsTime()
		return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}, nil
	case cell.KindDouble:
		v, _ := c.AsDouble()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("double %v is not representable", v)
		}
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'g', -1, 64)}, nil
	case cell.KindGUID:
		id, _ := c.AsGUID()
		return &types.AttributeValueMemberS{Value: id.String()}, nil
	case cell.KindInt32:
		v, _ := c.AsInt32()
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
	case cell.KindInt64:
		v, _ := c.AsInt64()
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}, nil
	case cell.KindString:
		v, _ := c.AsString()
		return &types.AttributeValueMemberS{Value: v}, nil
	}
	return nil, fmt.Errorf("invalid cell")
}

// DecodeItem converts a DynamoDB item back to a row. Attributes missing
// from _kinds (items written by other tools) get a kind inferred from their
// attribute type; attributes of other types (lists, maps, sets) are skipped.
func DecodeItem(item map[string]types.AttributeValue) (*table.Row, error) {
	row := &table.Row{Cells: make(cell.Bag, len(item))}
	if v, ok := item[AttrPartitionKey].(*types.AttributeValueMemberS); ok {
		row.Key.PartitionKey = v.Value
	}
	if v, ok := item[AttrRowKey].(*types.AttributeValueMemberS); ok {
		row.Key.RowKey = v.Value
	}
	if v, ok := item[AttrETag].(*types.AttributeValueMemberN); ok {
		row.ETag, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := item[AttrTimestamp].(*types.AttributeValueMemberS); ok {
		row.Timestamp, _ = time.Parse(time.RFC3339Nano, v.Value)
	}

	var kinds map[string]string
	if av, ok := item[AttrKinds]; ok {
		if err := attributevalue.Unmarshal(av, &kinds); err != nil {
			return nil, fmt.Errorf("unmarshal kinds: %w", err)
		}
	}

	for name, av := range item {
		if reserved(name) {
			continue
		}
		kind := cell.KindInvalid
		if code, ok := kinds[name]; ok {
			var known bool
			if kind, known = cell.KindFromCode(code); !known {
				return nil, fmt.Errorf("dynamo: cell %q: unknown kind %q", name, code)
			}
		}
		c, ok, err := decodeCell(av, kind)
		if err != nil {
			return nil, fmt.Errorf("dynamo: cell %q: %w", name, err)
		}
		if ok {
			row.Cells[name] = c
		}
	}
	return row, nil
}

func decodeCell(av types.AttributeValue, kind cell.Kind) (cell.Cell, bool, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberB:
		return cell.Binary(v.Value), true, nil
	case *types.AttributeValueMemberBOOL:
		return cell.Bool(v.Value), true, nil
	case *types.AttributeValueMemberS:
		switch kind {
		case cell.KindTimestamp:
			t, err := time.Parse(time.RFC3339Nano, v.Value)
			if err != nil {
				return cell.Cell{}, false, err
			}
			return cell.Timestamp(t), true, nil
		case cell.KindGUID:
			id, err := uuid.Parse(v.Value)
			if err != nil {
				return cell.Cell{}, false, err
			}
			return cell.GUID(id), true, nil
		}
		return cell.String(v.Value), true, nil
	case *types.AttributeValueMemberN:
		switch kind {
		case cell.KindInt32:
			n, err := strconv.ParseInt(v.Value, 10, 32)
			return cell.Int32(int32(n)), err == nil, err
		case cell.KindDouble:
			f, err := strconv.ParseFloat(v.Value, 64)
			return cell.Double(f), err == nil, err
		case cell.KindInt64:
			n, err := strconv.ParseInt(v.Value, 10, 64)
			return cell.Int64(n), err == nil, err
		}
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return cell.Int64(n), true, nil
		}
		f, err := strconv.ParseFloat(v.Value, 64)
		return cell.Double(f), err == nil, err
	}
	return cell.Cell{}, false, nil
}
