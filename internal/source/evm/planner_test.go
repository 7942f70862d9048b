package evm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headSeq struct {
	heads []uint64
	calls int
	err   error
}

func (h *headSeq) HeadBlock(context.Context) (uint64, error) {
	if h.err != nil {
		return 0, h.err
	}
	n := h.heads[h.calls%len(h.heads)]
	h.calls++
	return n, nil
}

func TestPlanSingleQueryBelowThreshold(t *testing.T) {
	for _, tc := range []struct{ from, to uint64 }{{100, 100}, {100, 105}, {0, 29}, {1000, 1029}} {
		subs, err := Plan(tc.from, tc.to, PlanOptions{})
		require.NoError(t, err)
		assert.Equal(t, []SubRange{{From: tc.from, To: tc.to}}, subs, "range %d-%d", tc.from, tc.to)
	}
}

func TestPlanPerBlockAtThreshold(t *testing.T) {
	for _, tc := range []struct{ from, to uint64 }{{0, 30}, {100, 135}, {7, 207}} {
		subs, err := Plan(tc.from, tc.to, PlanOptions{})
		require.NoError(t, err)
		require.Len(t, subs, int(tc.to-tc.from+1))
		for i, sub := range subs {
			want := tc.from + uint64(i)
			assert.Equal(t, SubRange{From: want, To: want}, sub)
		}
	}
}

func TestPlanCustomThreshold(t *testing.T) {
	subs, err := Plan(10, 15, PlanOptions{Threshold: 5})
	require.NoError(t, err)
	require.Len(t, subs, 6)
	for i, sub := range subs {
		assert.Equal(t, SubRange{From: 10 + uint64(i), To: 10 + uint64(i)}, sub)
	}

	subs, err = Plan(10, 14, PlanOptions{Threshold: 5})
	require.NoError(t, err)
	assert.Equal(t, []SubRange{{From: 10, To: 14}}, subs)

	subs, err = Plan(10, 13, PlanOptions{Threshold: 5})
	require.NoError(t, err)
	assert.Equal(t, []SubRange{{From: 10, To: 13}}, subs)
}

func TestPlanWindowMode(t *testing.T) {
	subs, err := Plan(100, 164, PlanOptions{Threshold: 30, Mode: ChunkWindow})
	require.NoError(t, err)
	assert.Equal(t, []SubRange{{100, 129}, {130, 159}, {160, 164}}, subs)

	subs, err = Plan(5, 5, PlanOptions{Mode: ChunkWindow})
	require.NoError(t, err)
	assert.Equal(t, []SubRange{{5, 5}}, subs)
}

func TestPlanRejects(t *testing.T) {
	_, err := Plan(10, 9, PlanOptions{})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Plan(1, 2, PlanOptions{Mode: "fibonacci"})
	assert.Error(t, err)
}

func TestResolveRange(t *testing.T) {
	ctx := context.Background()

	from, to, err := ResolveRange(ctx, &headSeq{heads: []uint64{500}}, BlockNumber(100), BlockNumber(105))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), from)
	assert.Equal(t, uint64(105), to)

	head := &headSeq{heads: []uint64{500}}
	from, to, err = ResolveRange(ctx, head, BlockNumber(480), LatestBlock())
	require.NoError(t, err)
	assert.Equal(t, uint64(480), from)
	assert.Equal(t, uint64(500), to)
	assert.Equal(t, 1, head.calls)
}

func TestResolveRangeLooksUpEachLatestSeparately(t *testing.T) {
	head := &headSeq{heads: []uint64{500, 502}}
	from, to, err := ResolveRange(context.Background(), head, LatestBlock(), LatestBlock())
	require.NoError(t, err)
	assert.Equal(t, 2, head.calls)
	assert.Equal(t, uint64(500), from)
	assert.Equal(t, uint64(502), to)
}

func TestResolveRangeInvalid(t *testing.T) {
	head := &headSeq{heads: []uint64{50}}
	_, _, err := ResolveRange(context.Background(), head, BlockNumber(60), LatestBlock())
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = ResolveRange(context.Background(), head, BlockNumber(10), BlockNumber(9))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestResolveRangeHeadFailure(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := ResolveRange(context.Background(), &headSeq{err: boom}, LatestBlock(), LatestBlock())
	assert.ErrorIs(t, err, boom)
}

func TestParseBlockRef(t *testing.T) {
	ref, err := ParseBlockRef("latest")
	require.NoError(t, err)
	assert.True(t, ref.IsLatest())
	assert.Equal(t, "latest", ref.String())

	ref, err = ParseBlockRef(" LATEST ")
	require.NoError(t, err)
	assert.True(t, ref.IsLatest())

	ref, err = ParseBlockRef("12345")
	require.NoError(t, err)
	assert.False(t, ref.IsLatest())
	assert.Equal(t, uint64(12345), ref.Number)

	for _, bad := range []string{"-1", "earliest", "", "0x10"} {
		_, err := ParseBlockRef(bad)
		assert.Error(t, err, bad)
	}
}
