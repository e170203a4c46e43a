// Package cachedict provides an embedded cache dictionary for Go: an
// in-memory attribute store over a slower backing source, refreshed
// asynchronously by a bounded update queue.
//
// A dictionary maps keys to rows of typed attributes. Lookups are served
// from storage; keys that are missing or past their freshness deadline are
// batched into update units and handed to a fixed pool of workers that
// fetch from the backing source and merge the results back. Waiting callers
// block until their batch completes; callers that can tolerate staleness
// get the old values back immediately while the refresh runs behind them.
//
// Two key shapes are supported:
//
//   - Simple: fixed-width uint64 keys (NewSimple)
//   - Complex: multi-column keys serialized into byte strings (NewComplex)
//
// # Quick start
//
//	req := column.MustFetchRequest(
//	    column.Attribute{Name: "population", Type: column.TypeUInt64},
//	    column.Attribute{Name: "name", Type: column.TypeString, Default: "unknown"},
//	)
//
//	dict, err := cachedict.NewSimple("cities",
//	    storage.NewTTL[uint64](5*time.Minute),
//	    source.NewMemory[uint64](),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer dict.Close()
//
//	result, err := dict.FetchColumns(ctx, []uint64{1, 2, 3}, req)
//
// # Backpressure
//
// The update queue is bounded. When it is full, pushes wait up to the
// configured push timeout and then fail with ErrBackpressure; synchronous
// waiters give up after the wait timeout with ErrRefreshTimeout. Both are
// load-shedding signals, not corruption: the dictionary stays consistent and
// the caller may retry.
//
// See the storage and source packages for the pluggable cache and backing
// store implementations (TTL cache, Redis, SQL, HTTP).
package cachedict
