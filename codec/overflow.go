package codec

import (
	"fmt"
	"strconv"

	"github.com/jacentio/lattice/cell"
)

const (
	// OverflowThreshold is the largest binary cell stored as-is.
	OverflowThreshold = 64 * 1024

	// OverflowChunkSize is the payload size of each chunk cell.
	OverflowChunkSize = 64 * 1024

	// OverflowSentinel replaces a split cell. Chunks live in
	// name_overflow_0, name_overflow_1, ...
	OverflowSentinel = "__overflow__"

	overflowInfix = "_overflow_"
)

// OverflowName returns the name of chunk i of the cell called name.
func OverflowName(name string, i int) string {
	return name + overflowInfix + strconv.Itoa(i)
}

func isSentinel(c cell.Cell) bool {
	s, ok := c.AsString()
	return ok && s == OverflowSentinel
}

// HasOverflow reports whether bag holds at least one sentinel cell.
func HasOverflow(bag cell.Bag) bool {
	for _, c := range bag {
		if isSentinel(c) {
			return true
		}
	}
	return false
}

// SplitOverflow replaces every binary cell longer than OverflowThreshold
// with the sentinel and chunk cells, in place. Cells for which eligible
// returns false fail with ErrCellTooLarge.
func SplitOverflow(bag cell.Bag, eligible func(name string) bool) error {
	var oversized []string
	for name, c := range bag {
		if b, ok := c.AsBinary(); ok && len(b) > OverflowThreshold {
			oversized = append(oversized, name)
			continue
		}
		// A string cell that reads as a marker must not be followed by a
		// chunk, or it would be joined on decode.
		if _, chunked := bag[OverflowName(name, 0)]; chunked && isSentinel(c) && eligible != nil && eligible(name) {
			return fmt.Errorf("cell %q holds the overflow sentinel next to chunk cell %q", name, OverflowName(name, 0))
		}
	}
	for _, name := range oversized {
		if eligible == nil || !eligible(name) {
			return fmt.Errorf("cell %q (%d bytes): %w", name, bag[name].Size(), ErrCellTooLarge)
		}
		b, _ := bag[name].AsBinary()
		for i := 0; len(b) > 0; i++ {
			chunkName := OverflowName(name, i)
			if _, taken := bag[chunkName]; taken {
				return fmt.Errorf("cell %q: chunk name %q is already in use", name, chunkName)
			}
			n := min(len(b), OverflowChunkSize)
			bag[chunkName] = cell.Binary(b[:n:n])
			b = b[n:]
		}
		bag[name] = cell.String(OverflowSentinel)
	}
	return nil
}

// JoinOverflow reassembles every split cell in place, concatenating chunks
// in index order and removing them from bag. Only cells for which eligible
// returns true are considered; a nil eligible accepts every name. A sentinel
// with no chunk 0 is an ordinary string and is left alone.
func JoinOverflow(bag cell.Bag, eligible func(name string) bool) error {
	var split []string
	for name, c := range bag {
		if !isSentinel(c) || (eligible != nil && !eligible(name)) {
			continue
		}
		if _, ok := bag[OverflowName(name, 0)]; ok {
			split = append(split, name)
		}
	}
	for _, name := range split {
		var payload []byte
		for i := 0; ; i++ {
			chunkName := OverflowName(name, i)
			c, ok := bag[chunkName]
			if !ok {
				break
			}
			b, ok := c.AsBinary()
			if !ok {
				return kindErr(chunkName, cell.KindBinary, c)
			}
			payload = append(payload, b...)
			delete(bag, chunkName)
		}
		bag[name] = cell.Binary(payload)
	}
	return nil
}
