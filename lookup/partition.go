package lookup

import (
	"github.com/jacentio/lattice/internal/shard"
)

// Partitioner derives the partition key of an index row from its row key.
type Partitioner func(rowKey string) string

// Fixed puts every index row in partition s.
func Fixed(s string) Partitioner {
	return func(string) string { return s }
}

// HashPrefix partitions by the first n hex digits of the FNV-1a 32-bit hash
// of the row key, spreading writes over 16^n partitions.
func HashPrefix(n int) Partitioner {
	return func(rowKey string) string { return shard.HashPrefix(rowKey, n) }
}

// Prefix partitions by the first n bytes of the row key itself.
func Prefix(n int) Partitioner {
	return func(rowKey string) string {
		if len(rowKey) <= n {
			return rowKey
		}
		return rowKey[:n]
	}
}

// Buckets partitions by the row key hash modulo n, as two hex digits.
func Buckets(n int) Partitioner {
	return func(rowKey string) string { return shard.Bucket(rowKey, n) }
}
