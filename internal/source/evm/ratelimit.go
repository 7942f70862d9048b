package evm

import (
	"context"
	"math"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// TokenBucket is a simple rate limiter for log queries.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second

	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
}

// NewTokenBucket creates a token bucket with capacity and refill rate.
func NewTokenBucket(capacity, rate float64) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     rate,
		tokens:   capacity,
		now:      time.Now,
	}
}

// Allow consumes one token if available, refilling based on elapsed time.
func (b *TokenBucket) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.take(now) == 0
}

// take refills, then consumes a token or returns how long until one is available.
func (b *TokenBucket) take(now time.Time) time.Duration {
	if b.lastUpdate.IsZero() {
		b.lastUpdate = now
	}
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.rate)
		b.lastUpdate = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return 0
	}
	if b.rate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// Wait blocks until a token is available or ctx is done.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		wait := b.take(b.now())
		b.mu.Unlock()
		if wait == 0 {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// throttled paces FilterLogs calls through a token bucket.
type throttled struct {
	next   LogFilterer
	bucket *TokenBucket
}

// Throttle limits client to qps log queries per second with the given burst.
// A non-positive qps returns client unchanged.
func Throttle(client LogFilterer, qps float64, burst int) LogFilterer {
	if qps <= 0 {
		return client
	}
	return &throttled{next: client, bucket: NewTokenBucket(float64(burst), qps)}
}

func (t *throttled) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := t.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.FilterLogs(ctx, q)
}
