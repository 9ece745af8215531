// Package shard provides partition key generation for index rows.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// Hash32 returns the FNV-1a 32-bit hash of s.
func Hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// HashPrefix returns the first n hex digits of Hash32(s).
// n is clamped to [1, 8].
func HashPrefix(s string, n int) string {
	n = max(1, min(n, 8))
	return fmt.Sprintf("%08x", Hash32(s))[:n]
}

// Bucket distributes s across numShards buckets, formatted as two hex digits.
// With numShards<=1, everything goes to bucket "00".
func Bucket(s string, numShards int) string {
	if numShards <= 1 {
		return "00"
	}
	return fmt.Sprintf("%02x", Hash32(s)%uint32(numShards))
}

// Digest returns the first n hex characters of the SHA-256 of s, used where
// a long natural key has to become a bounded-length row key.
// n is clamped to [1, 64].
func Digest(s string, n int) string {
	n = max(1, min(n, 64))
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:n]
}
