package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimitedDelegates(t *testing.T) {
	mem := NewMemory[uint64]()
	mem.Set(1, map[string]any{"population": uint64(1), "name": "a"})

	src := RateLimit[uint64](mem, rate.Inf, 0)
	defer src.Close()

	rows, err := src.FetchColumns(context.Background(), []uint64{1}, testRequest)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRateLimitedThrottles(t *testing.T) {
	mem := NewMemory[uint64]()
	for k := uint64(1); k <= 4; k++ {
		mem.Set(k, map[string]any{"population": k, "name": "x"})
	}

	// Burst covers the first batch; the second must wait for refill.
	src := RateLimit[uint64](mem, 100, 2)
	defer src.Close()

	start := time.Now()
	_, err := src.FetchColumns(context.Background(), []uint64{1, 2}, testRequest)
	require.NoError(t, err)
	_, err = src.FetchColumns(context.Background(), []uint64{3, 4}, testRequest)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestRateLimitedRespectsContext(t *testing.T) {
	mem := NewMemory[uint64]()

	// One key per minute: the wait would far outlive the deadline.
	src := RateLimit[uint64](mem, rate.Every(time.Minute), 1)
	defer src.Close()

	_, err := src.FetchColumns(context.Background(), []uint64{1}, testRequest)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = src.FetchColumns(ctx, []uint64{2}, testRequest)
	assert.Error(t, err)
}
