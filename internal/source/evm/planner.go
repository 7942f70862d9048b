package evm

import (
	"context"
	"fmt"
	"strings"
)

// DefaultChunkThreshold is the span below which a range is queried in one call.
const DefaultChunkThreshold = 30

// Chunk modes.
const (
	ChunkPerBlock = "per_block"
	ChunkWindow   = "window"
)

// HeadReader returns the current chain head block number.
type HeadReader interface {
	HeadBlock(ctx context.Context) (uint64, error)
}

// PlanOptions controls how a resolved range is partitioned.
type PlanOptions struct {
	// Threshold defaults to DefaultChunkThreshold when zero.
	Threshold uint64
	// Mode is ChunkPerBlock (default) or ChunkWindow.
	Mode string
}

// ResolveRange turns symbolic bounds into block numbers and validates the result.
// Each "latest" bound triggers its own head lookup, so start and end may observe different heads.
func ResolveRange(ctx context.Context, head HeadReader, start, end BlockRef) (uint64, uint64, error) {
	from, err := resolve(ctx, head, start)
	if err != nil {
		return 0, 0, err
	}
	to, err := resolve(ctx, head, end)
	if err != nil {
		return 0, 0, err
	}
	if to < from {
		return 0, 0, fmt.Errorf("%w: start_block (%d) > end_block (%d)", ErrInvalidRange, from, to)
	}
	return from, to, nil
}

func resolve(ctx context.Context, head HeadReader, ref BlockRef) (uint64, error) {
	if !ref.IsLatest() {
		return ref.Number, nil
	}
	n, err := head.HeadBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve latest block: %w", err)
	}
	return n, nil
}

// Plan partitions [from, to] into ascending sub-ranges.
//
// In per_block mode a span shorter than the threshold is one query and anything
// larger degrades to one query per block. In window mode the range is cut into
// fixed windows of threshold blocks.
func Plan(from, to uint64, opts PlanOptions) ([]SubRange, error) {
	if to < from {
		return nil, fmt.Errorf("%w: start_block (%d) > end_block (%d)", ErrInvalidRange, from, to)
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultChunkThreshold
	}

	switch strings.ToLower(opts.Mode) {
	case "", ChunkPerBlock:
		if to-from < threshold {
			return []SubRange{{From: from, To: to}}, nil
		}
		subs := make([]SubRange, 0, to-from+1)
		for n := from; ; n++ {
			subs = append(subs, SubRange{From: n, To: n})
			if n == to {
				break
			}
		}
		return subs, nil
	case ChunkWindow:
		subs := make([]SubRange, 0, (to-from)/threshold+1)
		for n := from; ; {
			end := n + threshold - 1
			if end > to || end < n {
				end = to
			}
			subs = append(subs, SubRange{From: n, To: end})
			if end == to {
				break
			}
			n = end + 1
		}
		return subs, nil
	default:
		return nil, fmt.Errorf("unknown chunk mode %q", opts.Mode)
	}
}
