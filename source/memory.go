package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/josemimbre/cachedict/column"
)

// Memory is an in-memory Source keyed by attribute name. Useful for tests,
// examples and small static dictionaries.
type Memory[K comparable] struct {
	mu   sync.RWMutex
	data map[K]map[string]any
}

// NewMemory creates an empty in-memory source.
func NewMemory[K comparable]() *Memory[K] {
	return &Memory[K]{
		data: make(map[K]map[string]any),
	}
}

// Set stores the attribute values for key, replacing any previous ones.
func (m *Memory[K]) Set(key K, values map[string]any) {
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}

	m.mu.Lock()
	m.data[key] = cp
	m.mu.Unlock()
}

// Delete removes key from the source.
func (m *Memory[K]) Delete(key K) {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}

// FetchColumns implements Source.
func (m *Memory[K]) FetchColumns(ctx context.Context, keys []K, req *column.FetchRequest) (map[K][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attrs := req.Attributes()
	out := make(map[K][]any, len(keys))

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, k := range keys {
		values, ok := m.data[k]
		if !ok {
			continue
		}

		row := make([]any, len(attrs))
		for i, a := range attrs {
			raw, ok := values[a.Name]
			if !ok {
				return nil, fmt.Errorf("source: key %v has no attribute %q", k, a.Name)
			}
			v, err := column.NormalizeValue(a.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("source: key %v attribute %q: %w", k, a.Name, err)
			}
			row[i] = v
		}
		out[k] = row
	}

	return out, nil
}

// Close implements Source.
func (m *Memory[K]) Close() error {
	return nil
}
