package source

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/josemimbre/cachedict/column"
)

// Redis is a Source reading attribute values from Redis hashes: one hash per
// key, one field per attribute. Batches are fetched with a single pipelined
// HMGET round trip.
type Redis[K comparable] struct {
	client redis.UniversalClient
	prefix string
	keyFn  func(K) string
}

// RedisOption configures a Redis source.
type RedisOption[K comparable] func(*Redis[K])

// WithRedisKeyFunc overrides how a dictionary key maps to a Redis key
// (before the prefix is applied). Defaults to fmt.Sprint.
func WithRedisKeyFunc[K comparable](fn func(K) string) RedisOption[K] {
	return func(r *Redis[K]) {
		r.keyFn = fn
	}
}

// NewRedis creates a Redis source. prefix namespaces the dictionary's hashes
// within the keyspace, e.g. "dict:geo:".
func NewRedis[K comparable](client redis.UniversalClient, prefix string, opts ...RedisOption[K]) *Redis[K] {
	r := &Redis[K]{
		client: client,
		prefix: prefix,
		keyFn:  func(k K) string { return fmt.Sprint(k) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchColumns implements Source.
func (r *Redis[K]) FetchColumns(ctx context.Context, keys []K, req *column.FetchRequest) (map[K][]any, error) {
	attrs := req.Attributes()
	fields := make([]string, len(attrs))
	for i, a := range attrs {
		fields[i] = a.Name
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HMGet(ctx, r.prefix+r.keyFn(k), fields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("source: redis pipeline: %w", err)
	}

	out := make(map[K][]any, len(keys))
	for i, k := range keys {
		raw := cmds[i].Val()

		// HMGET returns all-nil when the hash does not exist.
		present := false
		for _, v := range raw {
			if v != nil {
				present = true
				break
			}
		}
		if !present {
			continue
		}

		row := make([]any, len(attrs))
		for j, a := range attrs {
			if raw[j] == nil {
				return nil, fmt.Errorf("source: redis key %v misses field %q", k, a.Name)
			}
			v, err := column.NormalizeValue(a.Type, raw[j])
			if err != nil {
				return nil, fmt.Errorf("source: redis key %v field %q: %w", k, a.Name, err)
			}
			row[j] = v
		}
		out[k] = row
	}

	return out, nil
}

// Close implements Source.
func (r *Redis[K]) Close() error {
	return r.client.Close()
}
