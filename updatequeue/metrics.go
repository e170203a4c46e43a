package updatequeue

import (
	"sync"
	"sync/atomic"
)

// Metrics tracks outstanding work for a queue's scope. The two gauges count
// units and keys that have been constructed but not yet released, which makes
// in-flight refresh pressure observable without a real metrics backend.
//
// Metrics are injected into unit constructors rather than kept as ambient
// global state; a nil *Metrics disables accounting.
type Metrics struct {
	batches atomic.Int64
	keys    atomic.Int64
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// OutstandingBatches returns the number of alive update units.
func (m *Metrics) OutstandingBatches() int64 {
	if m == nil {
		return 0
	}
	return m.batches.Load()
}

// OutstandingKeys returns the number of keys held by alive update units.
func (m *Metrics) OutstandingKeys() int64 {
	if m == nil {
		return 0
	}
	return m.keys.Load()
}

// acquire accounts one unit with the given key count. The returned increment
// must be released exactly once; release is idempotent.
func (m *Metrics) acquire(keys int64) *increment {
	inc := &increment{m: m, keys: keys}
	if m != nil {
		m.batches.Add(1)
		m.keys.Add(keys)
	}
	return inc
}

// increment is a scoped hold on the outstanding gauges, acquired at unit
// construction and released when the unit completes or is abandoned.
type increment struct {
	m    *Metrics
	keys int64
	once sync.Once
}

func (inc *increment) release() {
	inc.once.Do(func() {
		if inc.m != nil {
			inc.m.batches.Add(-1)
			inc.m.keys.Add(-inc.keys)
		}
	})
}
