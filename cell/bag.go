package cell

import (
	"sort"
	"strings"
)

// Bag is the wire form of one stored row: cell name to cell.
type Bag map[string]Cell

// Clone returns a shallow copy of b. Binary payloads are shared.
func (b Bag) Clone() Bag {
	if b == nil {
		return nil
	}
	out := make(Bag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Equal reports whether both bags hold the same names with equal cells.
func (b Bag) Equal(o Bag) bool {
	if len(b) != len(o) {
		return false
	}
	for k, v := range b {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Names returns the cell names in sorted order.
func (b Bag) Names() []string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (b Bag) String() string {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, name := range b.Names() {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(name)
		buf.WriteByte('=')
		buf.WriteString(b[name].String())
	}
	buf.WriteByte('}')
	return buf.String()
}

// Key addresses one row within a table.
type Key struct {
	RowKey       string
	PartitionKey string
}

func (k Key) String() string {
	return k.PartitionKey + "/" + k.RowKey
}

// Less orders keys by partition key, then row key.
func (k Key) Less(o Key) bool {
	if k.PartitionKey != o.PartitionKey {
		return k.PartitionKey < o.PartitionKey
	}
	return k.RowKey < o.RowKey
}
