package indexer

import "fmt"

// BlockRange is an inclusive span of blocks.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len is the number of blocks in r. It wraps to zero for the full uint64 span.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// trimThrough drops every block up to and including last. It reports false
// when nothing of r is left.
func (r BlockRange) trimThrough(last uint64) (BlockRange, bool) {
	switch {
	case last < r.From:
		return r, true
	case last >= r.To:
		return BlockRange{}, false
	default:
		return BlockRange{From: last + 1, To: r.To}, true
	}
}

// SplitRange cuts [from, to] into consecutive batches of at most batchSize
// blocks. The last batch may be shorter.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is before from block %d", to, from)
	}

	out := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		// to-start is the distance to the end, so this never overflows.
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		out = append(out, BlockRange{From: start, To: end})
		if end == to {
			return out, nil
		}
		start = end + 1
	}
}
