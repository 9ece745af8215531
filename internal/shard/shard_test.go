package shard

import (
	"testing"
)

func TestHash32_KnownValues(t *testing.T) {
	tests := []struct {
		input    string
		expected uint32
	}{
		{"", 0x811c9dc5},
		{"alpha", 0x5d8b6dab},
		{"beta", 0xaf81e4c7},
	}

	for _, tt := range tests {
		if got := Hash32(tt.input); got != tt.expected {
			t.Errorf("Hash32(%q) = %08x, want %08x", tt.input, got, tt.expected)
		}
	}
}

func TestHashPrefix(t *testing.T) {
	tests := []struct {
		input    string
		n        int
		expected string
	}{
		{"alpha", 2, "5d"},
		{"alpha", 4, "5d8b"},
		{"beta", 2, "af"},
		{"alpha", 0, "5"},
		{"alpha", 20, "5d8b6dab"},
	}

	for _, tt := range tests {
		if got := HashPrefix(tt.input, tt.n); got != tt.expected {
			t.Errorf("HashPrefix(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.expected)
		}
	}
}

func TestBucket_SingleShard(t *testing.T) {
	// Zero or negative shards should be treated as 1
	for _, n := range []int{-1, 0, 1} {
		if got := Bucket("alpha", n); got != "00" {
			t.Errorf("Bucket(alpha, %d): expected '00', got %q", n, got)
		}
	}
}

func TestBucket_MultipleShards(t *testing.T) {
	numShards := 256

	counts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		key := "row#" + string(rune('a'+i%26)) + string(rune('0'+i%10))
		b := Bucket(key, numShards)
		if len(b) != 2 {
			t.Errorf("expected two hex digits, got %q", b)
		}
		counts[b]++
	}

	// Should have distribution across multiple buckets (not all in one)
	if len(counts) < 10 {
		t.Errorf("expected distribution across multiple buckets, got only %d unique buckets", len(counts))
	}
}

func TestBucket_Deterministic(t *testing.T) {
	first := Bucket("alpha", 16)
	if first != "0b" {
		t.Errorf("expected '0b', got %q", first)
	}
	for i := 0; i < 100; i++ {
		if got := Bucket("alpha", 16); got != first {
			t.Errorf("expected deterministic result %q, got %q on iteration %d", first, got, i)
		}
	}
}

func TestDigest(t *testing.T) {
	got := Digest("https://example.com/a", 32)
	if got != "2dce0a4c50441bfccfa9caf4b58c3cba" {
		t.Errorf("unexpected digest %q", got)
	}
	if len(Digest("x", 100)) != 64 {
		t.Error("expected digest length to be clamped to 64")
	}
}
