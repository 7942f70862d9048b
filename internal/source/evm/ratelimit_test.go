package evm

import (
	"context"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 1) // capacity=2, 1 token/sec
	now := time.Now()

	if !tb.Allow(now) || !tb.Allow(now) {
		t.Fatalf("expected initial tokens available")
	}
	if tb.Allow(now) {
		t.Fatalf("expected bucket to be empty")
	}
	if !tb.Allow(now.Add(1100 * time.Millisecond)) {
		t.Fatalf("expected refill after one second")
	}
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 0.001)
	require.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestThrottlePacesQueries(t *testing.T) {
	fc := &fakeFilterer{logs: map[uint64][]types.Log{}}
	assert.Same(t, LogFilterer(fc), Throttle(fc, 0, 1))

	limited := Throttle(fc, 50, 1)
	q := ethereum.FilterQuery{FromBlock: big.NewInt(1), ToBlock: big.NewInt(1)}

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := limited.FilterLogs(context.Background(), q)
		require.NoError(t, err)
	}
	// First query uses the burst token; the next two wait ~20ms each.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Len(t, fc.queries, 3)
}
