package evm

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// LogFilterer captures the subset of Client used by the fetcher.
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Fetcher queries Deposit logs of one contract, one call per sub-range.
type Fetcher struct {
	client    LogFilterer
	addresses []common.Address
	topics    [][]common.Hash
}

// NewFetcher builds a fetcher filtering on the decoder's contract and topic.
func NewFetcher(client LogFilterer, dec *Decoder) *Fetcher {
	return &Fetcher{
		client:    client,
		addresses: []common.Address{dec.Address()},
		topics:    [][]common.Hash{{dec.Topic()}},
	}
}

// Fetch issues a single eth_getLogs for the sub-range. Logs keep node order.
func (f *Fetcher) Fetch(ctx context.Context, sub SubRange) ([]types.Log, error) {
	logs, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(sub.From),
		ToBlock:   new(big.Int).SetUint64(sub.To),
		Addresses: f.addresses,
		Topics:    f.topics,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: blocks %s: %w", ErrFetch, sub, err)
	}
	return logs, nil
}

// FetchAll fetches every sub-range and returns per-range results in input order.
// With concurrency above one the queries fan out, and the first failure cancels the rest.
func (f *Fetcher) FetchAll(ctx context.Context, subs []SubRange, concurrency int) ([][]types.Log, error) {
	out := make([][]types.Log, len(subs))
	if concurrency <= 1 {
		for i, sub := range subs {
			logs, err := f.Fetch(ctx, sub)
			if err != nil {
				return nil, err
			}
			out[i] = logs
		}
		return out, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			logs, err := f.Fetch(gCtx, sub)
			if err != nil {
				return err
			}
			out[i] = logs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
