package source

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/josemimbre/cachedict/column"
)

// RateLimited wraps a Source with a keys-per-second fetch budget, protecting
// a fragile backing store from refresh storms. A batch of n keys consumes n
// tokens; FetchColumns blocks until the budget allows the batch or ctx ends.
type RateLimited[K comparable] struct {
	src     Source[K]
	limiter *rate.Limiter
}

// RateLimit wraps src so that at most limit keys per second are fetched,
// with the given burst.
func RateLimit[K comparable](src Source[K], limit rate.Limit, burst int) *RateLimited[K] {
	return &RateLimited[K]{
		src:     src,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// FetchColumns implements Source.
func (r *RateLimited[K]) FetchColumns(ctx context.Context, keys []K, req *column.FetchRequest) (map[K][]any, error) {
	if err := r.limiter.WaitN(ctx, len(keys)); err != nil {
		return nil, fmt.Errorf("source: rate limit: %w", err)
	}
	return r.src.FetchColumns(ctx, keys, req)
}

// Close implements Source.
func (r *RateLimited[K]) Close() error {
	return r.src.Close()
}
