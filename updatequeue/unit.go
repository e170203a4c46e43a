package updatequeue

import (
	"fmt"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/josemimbre/cachedict/column"
	"github.com/josemimbre/cachedict/internal/arena"
)

// Key constrains the two key representations a dictionary can use: simple
// fixed-width uint64 keys, or complex multi-column keys serialized into
// byte sequences viewed as strings.
type Key interface {
	~uint64 | ~string
}

// UpdateUnit is the unit of work exchanged between a producer (a dictionary
// lookup path) and a consumer (the update function running on a queue
// worker).
//
// The requested keys and the fetch request are immutable after construction.
// ResultColumns, KeyToResultRow and FoundRows are written by exactly one
// worker and may be read by any number of waiters, but only after the unit
// is done; completion publication provides the visibility boundary, so no
// per-field locking exists.
//
// For complex keys the unit owns a private arena holding copies of the
// serialized key bytes, so the keys stay valid even after the caller's
// source columns are gone.
type UpdateUnit[K Key] struct {
	// Request describes which attributes the update must populate. Opaque
	// to the queue; passed through to the update function.
	Request *column.FetchRequest

	// ResultColumns are the mutable output columns, pre-allocated to match
	// the request's attribute set and filled by the update function.
	ResultColumns []column.Column

	// KeyToResultRow maps a requested key to its row in ResultColumns.
	// Populated by the update function as it fills data.
	KeyToResultRow map[K]int

	// FoundRows marks the ResultColumns rows whose key the backing source
	// actually knew. Rows absent from the bitmap let the dictionary
	// negative-cache misses. Populated by the update function.
	FoundRows *roaring.Bitmap

	requestedKeys []K
	keyArena      *arena.Arena // non-nil for complex-key units

	isDone atomic.Bool
	done   chan struct{}
	err    error

	alive *increment
}

// NewSimpleUnit creates an update unit for fixed-width integer keys. The
// keys slice is owned by the unit afterwards.
func NewSimpleUnit(keys []uint64, req *column.FetchRequest, m *Metrics) *UpdateUnit[uint64] {
	return newUnit[uint64](keys, req, nil, m)
}

// NewComplexUnit creates an update unit for multi-column keys. Each
// requested row's key is serialized into a unit-owned arena, so the caller
// may free or mutate the key columns as soon as the constructor returns.
func NewComplexUnit(keyColumns []column.Column, rows []int, req *column.FetchRequest, m *Metrics) (*UpdateUnit[string], error) {
	if len(keyColumns) == 0 {
		return nil, fmt.Errorf("updatequeue: complex unit needs key columns")
	}

	a := arena.New(0)
	keys := make([]string, len(rows))

	var buf []byte
	for i, row := range rows {
		var err error
		buf, err = column.SerializeKeyRow(keyColumns, row, buf[:0])
		if err != nil {
			return nil, err
		}
		keys[i] = a.InternBytes(buf)
	}

	return newUnit[string](keys, req, a, m), nil
}

// NewComplexUnitFromSerialized creates a complex-key update unit from
// already serialized keys. The key bytes are copied into the unit's arena;
// the input strings are not retained.
func NewComplexUnitFromSerialized(keys []string, req *column.FetchRequest, m *Metrics) *UpdateUnit[string] {
	a := arena.New(0)
	owned := make([]string, len(keys))
	for i, k := range keys {
		owned[i] = a.InternBytes([]byte(k))
	}
	return newUnit[string](owned, req, a, m)
}

func newUnit[K Key](keys []K, req *column.FetchRequest, a *arena.Arena, m *Metrics) *UpdateUnit[K] {
	u := &UpdateUnit[K]{
		Request:        req,
		KeyToResultRow: make(map[K]int, len(keys)),
		FoundRows:      roaring.New(),
		requestedKeys:  keys,
		keyArena:       a,
		done:           make(chan struct{}),
		alive:          m.acquire(int64(len(keys))),
	}
	if req != nil {
		u.ResultColumns = req.MakeResultColumns()
	}
	return u
}

// RequestedKeys returns the keys this unit refreshes. Read-only.
func (u *UpdateUnit[K]) RequestedKeys() []K {
	return u.requestedKeys
}

// KeyArenaSize returns the number of key bytes owned by the unit's arena.
// Zero for simple-key units.
func (u *UpdateUnit[K]) KeyArenaSize() int {
	if u.keyArena == nil {
		return 0
	}
	return u.keyArena.Size()
}

// IsDone reports whether the unit has been processed. It transitions false
// to true exactly once and is never reset.
func (u *UpdateUnit[K]) IsDone() bool {
	return u.isDone.Load()
}

// Done returns a channel closed when the unit has been processed.
func (u *UpdateUnit[K]) Done() <-chan struct{} {
	return u.done
}

// Err returns the failure captured from the update function. Only meaningful
// once IsDone reports true.
func (u *UpdateUnit[K]) Err() error {
	if !u.isDone.Load() {
		return nil
	}
	return u.err
}

// Release abandons a unit that was never handed to the queue (for example
// after a failed push), returning its hold on the outstanding gauges.
// Safe to call multiple times; a no-op for units the queue completed.
func (u *UpdateUnit[K]) Release() {
	u.alive.release()
}

// finish is called by exactly one worker. It captures the outcome, releases
// the unit's gauge hold and publishes completion. The gauge drop happens
// before the done publication so waiters never observe a completed unit
// still counted as outstanding.
func (u *UpdateUnit[K]) finish(err error) {
	u.err = err
	u.alive.release()
	u.isDone.Store(true)
	close(u.done)
}
