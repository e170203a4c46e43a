// Package storage defines the cache-side store a dictionary reads from and
// the update queue's results are merged into.
//
// The store is deliberately narrow: batched positional fetches for the
// lookup path, single-key inserts for the merge path, and negative caching
// of keys the backing source does not know. Eviction and expiry policy are
// delegated to the implementation.
package storage

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/josemimbre/cachedict/column"
)

// Row holds one key's attribute values in fetch-request attribute order.
// Values are stored normalized (see column.NormalizeValue).
type Row struct {
	Values []any
}

// FetchResult reports a batched lookup. All bitmaps are indexed by position
// in the requested key slice.
type FetchResult struct {
	// Rows has one entry per requested key; the zero Row for keys without
	// a cached entry.
	Rows []Row

	// Found marks positions with a cached entry, including negative ones.
	Found *roaring.Bitmap

	// Expired marks found positions whose entry is past its freshness
	// deadline. Such entries may still be served stale while a refresh is
	// in flight.
	Expired *roaring.Bitmap

	// Missing marks found positions that are negative-cached: the backing
	// source was asked and did not know the key.
	Missing *roaring.Bitmap
}

// NewFetchResult allocates a FetchResult for n requested keys.
func NewFetchResult(n int) *FetchResult {
	return &FetchResult{
		Rows:    make([]Row, n),
		Found:   roaring.New(),
		Expired: roaring.New(),
		Missing: roaring.New(),
	}
}

// Storage is the in-memory cache a dictionary sits on. Implementations must
// be safe for concurrent use: the lookup path fetches while queue workers
// insert.
type Storage[K comparable] interface {
	// Fetch performs a batched positional lookup of keys.
	Fetch(keys []K, req *column.FetchRequest) *FetchResult

	// Insert stores a freshly fetched row for key, resetting its TTL.
	Insert(key K, row Row)

	// InsertMissing negative-caches key: the backing source does not know
	// it. Lookups report it found+missing until it expires.
	InsertMissing(key K)

	// Delete removes key. It reports whether an entry existed.
	Delete(key K) bool

	// Len returns the number of cached entries, including negative ones.
	Len() int

	// Close releases the storage's background resources.
	Close() error
}
