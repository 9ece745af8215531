package index

import (
	"slices"
	"time"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/codec"
	"github.com/jacentio/lattice/table"
)

// MembersCell is the cell holding an index row's members as a framed list
// of (row key, partition key) pairs.
const MembersCell = "rowAndPartitionKeys"

var membersCodec = codec.Array(codec.Pair(codec.String(), codec.String()))

// Row is one index row: the primary rows currently indexed under Key.
type Row struct {
	Key          cell.Key
	ETag         int64
	LastModified time.Time

	// Members lists primary row keys in insertion order. A key may appear
	// more than once while concurrent writes are in flight.
	Members []cell.Key
}

// Contains reports whether member is listed.
func (r *Row) Contains(member cell.Key) bool {
	return slices.Contains(r.Members, member)
}

func decodeMembers(bag cell.Bag) ([]cell.Key, error) {
	pairs, err := membersCodec.Decode(MembersCell, bag)
	if err != nil {
		return nil, err
	}
	members := make([]cell.Key, len(pairs))
	for i, p := range pairs {
		members[i] = cell.Key{RowKey: p.Key, PartitionKey: p.Value}
	}
	return members, nil
}

func encodeMembers(members []cell.Key, bag cell.Bag) error {
	pairs := make([]codec.KV[string, string], len(members))
	for i, m := range members {
		pairs[i] = codec.KV[string, string]{Key: m.RowKey, Value: m.PartitionKey}
	}
	return membersCodec.Encode(MembersCell, pairs, bag)
}

func decodeRow(r *table.Row) (*Row, error) {
	members, err := decodeMembers(r.Cells)
	if err != nil {
		return nil, err
	}
	return &Row{Key: r.Key, ETag: r.ETag, LastModified: r.Timestamp, Members: members}, nil
}

// Membership edits. Each returns the new member list; an edit whose result
// equals its input is not written.

func appendMembers(add ...cell.Key) func([]cell.Key) []cell.Key {
	return func(members []cell.Key) []cell.Key {
		return append(slices.Clip(members), add...)
	}
}

func appendMissing(member cell.Key) func([]cell.Key) []cell.Key {
	return func(members []cell.Key) []cell.Key {
		if slices.Contains(members, member) {
			return members
		}
		return append(slices.Clip(members), member)
	}
}

func removeOne(member cell.Key) func([]cell.Key) []cell.Key {
	return func(members []cell.Key) []cell.Key {
		i := slices.Index(members, member)
		if i < 0 {
			return members
		}
		return slices.Delete(slices.Clone(members), i, i+1)
	}
}

// removeAll removes every occurrence of member and stores how many were
// removed in *n.
func removeAll(member cell.Key, n *int) func([]cell.Key) []cell.Key {
	return func(members []cell.Key) []cell.Key {
		next := slices.DeleteFunc(slices.Clone(members), func(k cell.Key) bool { return k == member })
		*n = len(members) - len(next)
		return next
	}
}
