package lookup

import (
	"cmp"
	"slices"
	"strings"

	"github.com/jacentio/lattice/cell"
)

// Each keys a collection by every element, for reverse indices such as
// "which records reference X".
func Each[F any](s Strategy[F]) Strategy[[]F] {
	return StrategyFunc[[]F](func(vs []F) []cell.Key {
		var keys []cell.Key
		for _, v := range vs {
			keys = append(keys, s.Keys(v)...)
		}
		return Dedup(keys)
	})
}

// Optional keys a nullable value; nil produces no keys.
func Optional[F any](s Strategy[F]) Strategy[*F] {
	return StrategyFunc[*F](func(v *F) []cell.Key {
		if v == nil {
			return nil
		}
		return s.Keys(*v)
	})
}

// Part is one participant of a scoped key.
type Part[T any] struct {
	// Order places the part within the key. Parts are joined in ascending
	// Order regardless of declaration order.
	Order int

	// Separator precedes the part's value, except for the first part.
	Separator string

	Value func(*T) string
}

// Scope builds row and partition keys by concatenating several fields of
// the same record.
type Scope[T any] struct {
	Row       []Part[T]
	Partition []Part[T]

	// Partitioner derives the partition key from the row key when Partition
	// is empty.
	Partitioner Partitioner

	// IgnoreEmpty produces no keys when any part's value is empty.
	IgnoreEmpty bool
}

// Keys implements Strategy over the whole record.
func (s Scope[T]) Keys(v *T) []cell.Key {
	row, ok := s.join(s.Row, v)
	if !ok {
		return nil
	}
	var part string
	switch {
	case len(s.Partition) > 0:
		if part, ok = s.join(s.Partition, v); !ok {
			return nil
		}
	case s.Partitioner != nil:
		part = s.Partitioner(row)
	}
	return []cell.Key{{RowKey: row, PartitionKey: part}}
}

func (s Scope[T]) join(parts []Part[T], v *T) (string, bool) {
	sorted := slices.Clone(parts)
	slices.SortStableFunc(sorted, func(a, b Part[T]) int { return cmp.Compare(a.Order, b.Order) })

	var b strings.Builder
	for i, p := range sorted {
		val := p.Value(v)
		if val == "" && s.IgnoreEmpty {
			return "", false
		}
		if i > 0 {
			b.WriteString(p.Separator)
		}
		b.WriteString(val)
	}
	return b.String(), true
}

// Scoped returns an extractor for a composite key over T.
func Scoped[T any](s Scope[T]) Extractor[T] {
	return Field(func(v *T) *T { return v }, Strategy[*T](s))
}
