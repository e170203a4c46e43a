package storage

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/josemimbre/cachedict/column"
)

type entry struct {
	row     Row
	missing bool
	staleAt time.Time
}

// TTLStorage is a Storage backed by an expiring in-memory cache.
//
// An entry is fresh for ttl, then served stale for up to grace while a
// refresh is expected to replace it, and evicted afterwards. Negative
// entries use missingTTL as their freshness window.
type TTLStorage[K comparable] struct {
	cache      *ttlcache.Cache[K, entry]
	ttl        time.Duration
	missingTTL time.Duration
	grace      time.Duration
}

// TTLOption configures a TTLStorage.
type TTLOption func(*ttlOptions)

type ttlOptions struct {
	missingTTL time.Duration
	grace      time.Duration
	capacity   uint64
}

// WithMissingTTL sets the freshness window for negative entries. Defaults to
// the live-entry TTL.
func WithMissingTTL(d time.Duration) TTLOption {
	return func(o *ttlOptions) {
		o.missingTTL = d
	}
}

// WithStaleGrace sets how long past its freshness deadline an entry remains
// readable as stale before eviction. Defaults to the live-entry TTL.
func WithStaleGrace(d time.Duration) TTLOption {
	return func(o *ttlOptions) {
		o.grace = d
	}
}

// WithCapacity bounds the number of cached entries; the underlying cache
// evicts least recently inserted entries beyond it. Zero means unbounded.
func WithCapacity(n uint64) TTLOption {
	return func(o *ttlOptions) {
		o.capacity = n
	}
}

// NewTTL creates a TTLStorage whose entries are fresh for ttl.
func NewTTL[K comparable](ttl time.Duration, opts ...TTLOption) *TTLStorage[K] {
	o := ttlOptions{
		missingTTL: ttl,
		grace:      ttl,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := []ttlcache.Option[K, entry]{
		ttlcache.WithTTL[K, entry](ttl + o.grace),
		ttlcache.WithDisableTouchOnHit[K, entry](),
	}
	if o.capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[K, entry](o.capacity))
	}

	cache := ttlcache.New[K, entry](cacheOpts...)
	go cache.Start()

	return &TTLStorage[K]{
		cache:      cache,
		ttl:        ttl,
		missingTTL: o.missingTTL,
		grace:      o.grace,
	}
}

// Fetch implements Storage.
func (s *TTLStorage[K]) Fetch(keys []K, _ *column.FetchRequest) *FetchResult {
	res := NewFetchResult(len(keys))
	now := time.Now()

	for i, k := range keys {
		item := s.cache.Get(k)
		if item == nil {
			continue
		}

		e := item.Value()
		pos := uint32(i)

		res.Found.Add(pos)
		res.Rows[i] = e.row
		if e.missing {
			res.Missing.Add(pos)
		}
		if now.After(e.staleAt) {
			res.Expired.Add(pos)
		}
	}

	return res
}

// Insert implements Storage.
func (s *TTLStorage[K]) Insert(key K, row Row) {
	s.cache.Set(key, entry{
		row:     row,
		staleAt: time.Now().Add(s.ttl),
	}, ttlcache.DefaultTTL)
}

// InsertMissing implements Storage.
func (s *TTLStorage[K]) InsertMissing(key K) {
	s.cache.Set(key, entry{
		missing: true,
		staleAt: time.Now().Add(s.missingTTL),
	}, s.missingTTL+s.grace)
}

// Delete implements Storage.
func (s *TTLStorage[K]) Delete(key K) bool {
	if s.cache.Get(key) == nil {
		return false
	}
	s.cache.Delete(key)
	return true
}

// Len implements Storage.
func (s *TTLStorage[K]) Len() int {
	return s.cache.Len()
}

// Close stops the cache's expiry loop.
func (s *TTLStorage[K]) Close() error {
	s.cache.Stop()
	return nil
}
