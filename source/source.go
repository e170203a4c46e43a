// Package source defines the slow backing stores a cache dictionary
// refreshes from, plus ready-made adapters for the common ones: an in-memory
// map, Redis, SQL databases and HTTP endpoints.
//
// Adapters normalize transport-level values into the requested attribute
// types via column.NormalizeValue, so the dictionary merges uniform rows no
// matter where they came from.
package source

import (
	"context"

	"github.com/josemimbre/cachedict/column"
)

// Source fetches attribute values for a batch of keys.
//
// FetchColumns returns a map holding only the keys the source knows; absent
// keys are treated as misses and may be negative-cached by the dictionary.
// Each row's values are ordered like req.Attributes() and normalized to the
// attribute types.
//
// Implementations must be safe for concurrent use: every update-queue worker
// may call FetchColumns at once.
type Source[K comparable] interface {
	FetchColumns(ctx context.Context, keys []K, req *column.FetchRequest) (map[K][]any, error)
	Close() error
}

// Compile-time interface checks
var (
	_ Source[uint64] = (*Memory[uint64])(nil)
	_ Source[string] = (*Redis[string])(nil)
	_ Source[uint64] = (*SQL[uint64])(nil)
	_ Source[string] = (*HTTP[string])(nil)
	_ Source[uint64] = (*RateLimited[uint64])(nil)
)
