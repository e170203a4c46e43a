package cachedict

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josemimbre/cachedict/column"
	"github.com/josemimbre/cachedict/source"
	"github.com/josemimbre/cachedict/storage"
	"github.com/josemimbre/cachedict/updatequeue"
)

var testRequest = column.MustFetchRequest(
	column.Attribute{Name: "population", Type: column.TypeUInt64},
	column.Attribute{Name: "name", Type: column.TypeString, Default: "unknown"},
)

// countingSource wraps a Source and counts FetchColumns calls.
type countingSource[K comparable] struct {
	source.Source[K]
	calls atomic.Int64
}

func (c *countingSource[K]) FetchColumns(ctx context.Context, keys []K, req *column.FetchRequest) (map[K][]any, error) {
	c.calls.Add(1)
	return c.Source.FetchColumns(ctx, keys, req)
}

// failingSource fails every fetch with a fixed error.
type failingSource[K comparable] struct {
	err error
}

func (f *failingSource[K]) FetchColumns(context.Context, []K, *column.FetchRequest) (map[K][]any, error) {
	return nil, f.err
}

func (f *failingSource[K]) Close() error { return nil }

func newTestDictionary(t *testing.T, optFns ...Option) (*CacheDictionary[uint64], *countingSource[uint64]) {
	t.Helper()

	mem := source.NewMemory[uint64]()
	mem.Set(1, map[string]any{"population": uint64(100), "name": "oslo"})
	mem.Set(2, map[string]any{"population": uint64(250), "name": "bergen"})

	src := &countingSource[uint64]{Source: mem}
	dict, err := NewSimple("cities", storage.NewTTL[uint64](time.Minute), src, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dict.Close() })

	return dict, src
}

func TestFetchColumnsMissThenHit(t *testing.T) {
	dict, src := newTestDictionary(t)
	ctx := context.Background()

	res, err := dict.FetchColumns(ctx, []uint64{1, 2}, testRequest)
	require.NoError(t, err)

	require.Equal(t, 2, res.Columns[0].Len())
	assert.Equal(t, uint64(100), res.Columns[0].Get(0))
	assert.Equal(t, "oslo", res.Columns[1].Get(0))
	assert.Equal(t, uint64(250), res.Columns[0].Get(1))
	assert.Equal(t, "bergen", res.Columns[1].Get(1))
	assert.True(t, res.Found.Contains(0))
	assert.True(t, res.Found.Contains(1))
	assert.True(t, res.Stale.IsEmpty())
	assert.Equal(t, int64(1), src.calls.Load())

	// Second lookup is served from cache without touching the source.
	res, err = dict.FetchColumns(ctx, []uint64{1, 2}, testRequest)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.Columns[0].Get(0))
	assert.Equal(t, int64(1), src.calls.Load())

	assert.Equal(t, 2, dict.Len())
}

func TestFetchColumnsDefaultsForUnknownKeys(t *testing.T) {
	dict, src := newTestDictionary(t)
	ctx := context.Background()

	res, err := dict.FetchColumns(ctx, []uint64{1, 404}, testRequest)
	require.NoError(t, err)

	assert.True(t, res.Found.Contains(0))
	assert.False(t, res.Found.Contains(1))
	assert.Equal(t, uint64(0), res.Columns[0].Get(1))
	assert.Equal(t, "unknown", res.Columns[1].Get(1))

	// The miss is negative-cached: the next lookup stays local.
	_, err = dict.FetchColumns(ctx, []uint64{404}, testRequest)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.calls.Load())
}

func TestFetchColumnsDuplicateKeys(t *testing.T) {
	dict, _ := newTestDictionary(t)

	res, err := dict.FetchColumns(context.Background(), []uint64{1, 1, 2}, testRequest)
	require.NoError(t, err)

	require.Equal(t, 3, res.Columns[0].Len())
	assert.Equal(t, uint64(100), res.Columns[0].Get(0))
	assert.Equal(t, uint64(100), res.Columns[0].Get(1))
	assert.Equal(t, uint64(250), res.Columns[0].Get(2))
}

func TestAllowReadExpiredServesStale(t *testing.T) {
	mem := source.NewMemory[uint64]()
	mem.Set(1, map[string]any{"population": uint64(100), "name": "oslo"})

	st := storage.NewTTL[uint64](50*time.Millisecond, storage.WithStaleGrace(time.Minute))
	dict, err := NewSimple("cities", st, mem, WithAllowReadExpiredKeys(true))
	require.NoError(t, err)
	defer dict.Close()

	ctx := context.Background()
	_, err = dict.FetchColumns(ctx, []uint64{1}, testRequest)
	require.NoError(t, err)

	// Let the entry pass its freshness deadline, then change the source.
	time.Sleep(80 * time.Millisecond)
	mem.Set(1, map[string]any{"population": uint64(101), "name": "oslo"})

	res, err := dict.FetchColumns(ctx, []uint64{1}, testRequest)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.Columns[0].Get(0), "stale value is served immediately")
	assert.True(t, res.Stale.Contains(0))
	assert.True(t, res.Found.Contains(0))

	// The background refresh replaces the value.
	assert.Eventually(t, func() bool {
		res, err := dict.FetchColumns(ctx, []uint64{1}, testRequest)
		if err != nil {
			return false
		}
		return res.Columns[0].Get(0) == uint64(101) && res.Stale.IsEmpty()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExpiredBlocksWithoutAllowReadExpired(t *testing.T) {
	mem := source.NewMemory[uint64]()
	mem.Set(1, map[string]any{"population": uint64(100), "name": "oslo"})

	st := storage.NewTTL[uint64](50*time.Millisecond, storage.WithStaleGrace(time.Minute))
	dict, err := NewSimple("cities", st, mem)
	require.NoError(t, err)
	defer dict.Close()

	ctx := context.Background()
	_, err = dict.FetchColumns(ctx, []uint64{1}, testRequest)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	mem.Set(1, map[string]any{"population": uint64(101), "name": "oslo"})

	// Without stale reads the lookup waits for the refresh and sees the new
	// value right away.
	res, err := dict.FetchColumns(ctx, []uint64{1}, testRequest)
	require.NoError(t, err)
	assert.Equal(t, uint64(101), res.Columns[0].Get(0))
	assert.True(t, res.Stale.IsEmpty())
}

func TestSourceFailurePropagates(t *testing.T) {
	cause := errors.New("connection refused")
	dict, err := NewSimple("cities",
		storage.NewTTL[uint64](time.Minute),
		&failingSource[uint64]{err: cause},
	)
	require.NoError(t, err)
	defer dict.Close()

	_, err = dict.FetchColumns(context.Background(), []uint64{1}, testRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceFailure)
	assert.ErrorIs(t, err, cause)
}

func TestDeleteForcesRefresh(t *testing.T) {
	dict, src := newTestDictionary(t)
	ctx := context.Background()

	_, err := dict.FetchColumns(ctx, []uint64{1}, testRequest)
	require.NoError(t, err)
	require.Equal(t, int64(1), src.calls.Load())

	assert.True(t, dict.Delete(1))
	assert.False(t, dict.Delete(1))

	_, err = dict.FetchColumns(ctx, []uint64{1}, testRequest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.calls.Load())
}

func TestFetchAfterClose(t *testing.T) {
	dict, _ := newTestDictionary(t)
	require.NoError(t, dict.Close())

	_, err := dict.FetchColumns(context.Background(), []uint64{1}, testRequest)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseIdempotent(t *testing.T) {
	dict, _ := newTestDictionary(t)
	require.NoError(t, dict.Close())
	require.NoError(t, dict.Close())
}

func TestQueueMetricsSettle(t *testing.T) {
	dict, _ := newTestDictionary(t)

	_, err := dict.FetchColumns(context.Background(), []uint64{1, 2, 3}, testRequest)
	require.NoError(t, err)

	qm := dict.QueueMetrics()
	assert.Equal(t, int64(0), qm.OutstandingBatches())
	assert.Equal(t, int64(0), qm.OutstandingKeys())
}

func TestBasicMetricsCollector(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	dict, _ := newTestDictionary(t, WithMetricsCollector(metrics))
	ctx := context.Background()

	_, err := dict.FetchColumns(ctx, []uint64{1, 2, 404}, testRequest)
	require.NoError(t, err)
	_, err = dict.FetchColumns(ctx, []uint64{1, 2}, testRequest)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.FetchCount)
	assert.Equal(t, int64(5), stats.KeysRequested)
	assert.Equal(t, int64(2), stats.KeysHit)
	assert.Equal(t, int64(3), stats.KeysMissed)
	assert.Equal(t, int64(1), stats.RefreshCount)
	assert.Equal(t, int64(3), stats.KeysRefreshed)
	assert.Equal(t, int64(2), stats.KeysFound)
	assert.Equal(t, int64(0), stats.FetchErrors)
}

func TestConstructorValidation(t *testing.T) {
	st := storage.NewTTL[uint64](time.Minute)
	defer st.Close()
	src := source.NewMemory[uint64]()

	_, err := NewSimple("", st, src)
	assert.Error(t, err)

	_, err = NewSimple("cities", nil, src)
	assert.Error(t, err)

	_, err = NewSimple("cities", st, nil)
	assert.Error(t, err)
}

func TestComplexDictionary(t *testing.T) {
	// Country keys are (id uint64, region string) pairs serialized into
	// opaque byte strings shared by the source, the storage and the lookups.
	keyCols := []column.Column{
		&column.UInt64Column{Data: []uint64{7, 8}},
		&column.StringColumn{Data: []string{"north", "south"}},
	}
	keys, err := column.SerializeKeyRows(keyCols, []int{0, 1})
	require.NoError(t, err)

	mem := source.NewMemory[string]()
	mem.Set(keys[0], map[string]any{"population": uint64(100), "name": "north-7"})

	dict, err := NewComplex("regions", storage.NewTTL[string](time.Minute), mem)
	require.NoError(t, err)
	defer dict.Close()

	res, err := FetchComplexColumns(context.Background(), dict, keyCols, []int{0, 1}, testRequest)
	require.NoError(t, err)

	require.Equal(t, 2, res.Columns[0].Len())
	assert.True(t, res.Found.Contains(0))
	assert.Equal(t, uint64(100), res.Columns[0].Get(0))
	assert.Equal(t, "north-7", res.Columns[1].Get(0))

	assert.False(t, res.Found.Contains(1), "unknown complex key gets defaults")
	assert.Equal(t, "unknown", res.Columns[1].Get(1))
}

func TestBackpressureSurfacesAsError(t *testing.T) {
	release := make(chan struct{})
	mem := source.NewMemory[uint64]()
	slow := &gateSource{Source: mem, gate: release}

	cfg := updatequeue.Configuration{
		Capacity:    1,
		Workers:     1,
		PushTimeout: 20 * time.Millisecond,
		WaitTimeout: time.Minute,
	}
	dict, err := NewSimple("cities", storage.NewTTL[uint64](time.Minute), slow,
		WithQueueConfiguration(cfg),
	)
	require.NoError(t, err)
	defer func() {
		close(release)
		_ = dict.Close()
	}()

	// Saturate the worker and the single queue slot.
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			_, _ = dict.FetchColumns(context.Background(), []uint64{uint64(10 + i)}, testRequest)
		}()
	}
	time.Sleep(50 * time.Millisecond)

	_, err = dict.FetchColumns(context.Background(), []uint64{99}, testRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackpressure)
}

// gateSource blocks every fetch until gate is closed.
type gateSource struct {
	source.Source[uint64]
	gate chan struct{}
}

func (g *gateSource) FetchColumns(ctx context.Context, keys []uint64, req *column.FetchRequest) (map[uint64][]any, error) {
	<-g.gate
	return g.Source.FetchColumns(ctx, keys, req)
}
