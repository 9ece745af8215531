// Package lookup derives index row addresses from record fields.
//
// A [Strategy] turns one field value into zero or more index keys. An
// [Extractor] binds a strategy to the field of a record type it reads:
//
//	byName := lookup.Field(func(u *User) string { return u.Name },
//		lookup.Text(lookup.HashPrefix(2)).IgnoreZero())
//
// Extractors are pure functions of the record; the index protocol calls them
// on the old and new versions of a record and diffs the results.
package lookup

import (
	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/internal/shard"
)

// Strategy computes the index keys for a field value. An empty result means
// the record is not indexed under the current value.
type Strategy[F any] interface {
	Keys(v F) []cell.Key
}

// StrategyFunc adapts a function to a Strategy.
type StrategyFunc[F any] func(v F) []cell.Key

func (f StrategyFunc[F]) Keys(v F) []cell.Key { return f(v) }

// Extractor computes the index keys of a record.
type Extractor[T any] func(v *T) []cell.Key

// Field binds s to the field of T returned by get. Duplicate keys are
// removed.
func Field[T, F any](get func(*T) F, s Strategy[F]) Extractor[T] {
	return func(v *T) []cell.Key {
		return Dedup(s.Keys(get(v)))
	}
}

// Simple is a single-valued strategy: the row key is a string form of the
// value and the partition key is derived from the value or the row key.
type Simple[F any] struct {
	row        func(F) string
	zero       func(F) bool
	partition  func(v F, row string) string
	ignoreZero bool
	digest     int
}

func newSimple[F any](row func(F) string, zero func(F) bool, p Partitioner) Simple[F] {
	return Simple[F]{
		row:       row,
		zero:      zero,
		partition: func(_ F, row string) string { return p(row) },
	}
}

// Keys returns exactly one key, or none when the value is zero and the
// strategy ignores zero values.
func (s Simple[F]) Keys(v F) []cell.Key {
	if s.ignoreZero && s.zero(v) {
		return nil
	}
	row := s.row(v)
	if s.digest > 0 {
		row = shard.Digest(row, s.digest)
	}
	return []cell.Key{{RowKey: row, PartitionKey: s.partition(v, row)}}
}

// IgnoreZero makes zero or empty values produce no keys.
func (s Simple[F]) IgnoreZero() Simple[F] {
	s.ignoreZero = true
	return s
}

// Hashed replaces the row key with the first 32 hex characters of its
// SHA-256, bounding the key length. Partitioners see the hashed key.
func (s Simple[F]) Hashed() Simple[F] {
	s.digest = 32
	return s
}

// Dedup returns keys without repeats, keeping first occurrences in order.
func Dedup(keys []cell.Key) []cell.Key {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[cell.Key]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Diff returns the keys present in next but not in prev (added) and those
// present in prev but not in next (removed).
func Diff(prev, next []cell.Key) (added, removed []cell.Key) {
	in := func(keys []cell.Key) map[cell.Key]struct{} {
		m := make(map[cell.Key]struct{}, len(keys))
		for _, k := range keys {
			m[k] = struct{}{}
		}
		return m
	}
	prevSet, nextSet := in(prev), in(next)
	for _, k := range Dedup(next) {
		if _, ok := prevSet[k]; !ok {
			added = append(added, k)
		}
	}
	for _, k := range Dedup(prev) {
		if _, ok := nextSet[k]; !ok {
			removed = append(removed, k)
		}
	}
	return added, removed
}
