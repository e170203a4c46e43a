package cachedict

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    fetchCounter     prometheus.Counter
//	    refreshHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordFetch(keys, hits, misses int, duration time.Duration, err error) {
//	    p.fetchCounter.Inc()
//	    // ... record hit ratio, duration, etc.
//	}
type MetricsCollector interface {
	// RecordFetch is called after each lookup. keys is the number of keys
	// requested, hits how many were served from cache (fresh or stale),
	// misses how many needed a synchronous refresh. err is nil on success.
	RecordFetch(keys, hits, misses int, duration time.Duration, err error)

	// RecordRefresh is called after each refresh batch an update worker
	// executes. found is the number of keys the backing source knew.
	RecordRefresh(keys, found int, duration time.Duration, err error)

	// RecordStaleServe is called when expired keys are served stale while a
	// background refresh is in flight.
	RecordStaleServe(keys int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordFetch(int, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRefresh(int, int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordStaleServe(int)                            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FetchCount        atomic.Int64
	FetchErrors       atomic.Int64
	FetchTotalNanos   atomic.Int64
	KeysRequested     atomic.Int64
	KeysHit           atomic.Int64
	KeysMissed        atomic.Int64
	RefreshCount      atomic.Int64
	RefreshErrors     atomic.Int64
	RefreshTotalNanos atomic.Int64
	KeysRefreshed     atomic.Int64
	KeysFound         atomic.Int64
	StaleServes       atomic.Int64
	KeysServedStale   atomic.Int64
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(keys, hits, misses int, duration time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	b.KeysRequested.Add(int64(keys))
	b.KeysHit.Add(int64(hits))
	b.KeysMissed.Add(int64(misses))
	if err != nil {
		b.FetchErrors.Add(1)
	}
}

// RecordRefresh implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRefresh(keys, found int, duration time.Duration, err error) {
	b.RefreshCount.Add(1)
	b.RefreshTotalNanos.Add(duration.Nanoseconds())
	b.KeysRefreshed.Add(int64(keys))
	b.KeysFound.Add(int64(found))
	if err != nil {
		b.RefreshErrors.Add(1)
	}
}

// RecordStaleServe implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStaleServe(keys int) {
	b.StaleServes.Add(1)
	b.KeysServedStale.Add(int64(keys))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FetchCount:      b.FetchCount.Load(),
		FetchErrors:     b.FetchErrors.Load(),
		FetchAvgNanos:   b.getAvgFetchNanos(),
		KeysRequested:   b.KeysRequested.Load(),
		KeysHit:         b.KeysHit.Load(),
		KeysMissed:      b.KeysMissed.Load(),
		RefreshCount:    b.RefreshCount.Load(),
		RefreshErrors:   b.RefreshErrors.Load(),
		RefreshAvgNanos: b.getAvgRefreshNanos(),
		KeysRefreshed:   b.KeysRefreshed.Load(),
		KeysFound:       b.KeysFound.Load(),
		StaleServes:     b.StaleServes.Load(),
		KeysServedStale: b.KeysServedStale.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgFetchNanos() int64 {
	count := b.FetchCount.Load()
	if count == 0 {
		return 0
	}
	return b.FetchTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgRefreshNanos() int64 {
	count := b.RefreshCount.Load()
	if count == 0 {
		return 0
	}
	return b.RefreshTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FetchCount      int64
	FetchErrors     int64
	FetchAvgNanos   int64
	KeysRequested   int64
	KeysHit         int64
	KeysMissed      int64
	RefreshCount    int64
	RefreshErrors   int64
	RefreshAvgNanos int64
	KeysRefreshed   int64
	KeysFound       int64
	StaleServes     int64
	KeysServedStale int64
}
