package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLStorageFetch(t *testing.T) {
	s := NewTTL[uint64](time.Minute)
	defer s.Close()

	s.Insert(1, Row{Values: []any{uint64(10), "a"}})
	s.Insert(2, Row{Values: []any{uint64(20), "b"}})
	s.InsertMissing(3)

	res := s.Fetch([]uint64{1, 2, 3, 4}, nil)

	assert.True(t, res.Found.Contains(0))
	assert.True(t, res.Found.Contains(1))
	assert.True(t, res.Found.Contains(2))
	assert.False(t, res.Found.Contains(3), "key 4 was never cached")

	assert.True(t, res.Missing.Contains(2))
	assert.False(t, res.Missing.Contains(0))
	assert.True(t, res.Expired.IsEmpty())

	assert.Equal(t, []any{uint64(10), "a"}, res.Rows[0].Values)
	assert.Equal(t, []any{uint64(20), "b"}, res.Rows[1].Values)
	assert.Nil(t, res.Rows[3].Values)

	assert.Equal(t, 3, s.Len())
}

func TestTTLStorageStaleWindow(t *testing.T) {
	// Fresh for 20ms, readable as stale for another 200ms.
	s := NewTTL[uint64](20*time.Millisecond, WithStaleGrace(200*time.Millisecond))
	defer s.Close()

	s.Insert(1, Row{Values: []any{uint64(1)}})

	res := s.Fetch([]uint64{1}, nil)
	require.True(t, res.Found.Contains(0))
	require.True(t, res.Expired.IsEmpty())

	time.Sleep(40 * time.Millisecond)

	res = s.Fetch([]uint64{1}, nil)
	assert.True(t, res.Found.Contains(0), "stale entries are still readable")
	assert.True(t, res.Expired.Contains(0))
	assert.Equal(t, []any{uint64(1)}, res.Rows[0].Values)
}

func TestTTLStorageEvictionAfterGrace(t *testing.T) {
	s := NewTTL[uint64](10*time.Millisecond, WithStaleGrace(10*time.Millisecond))
	defer s.Close()

	s.Insert(1, Row{Values: []any{uint64(1)}})
	time.Sleep(50 * time.Millisecond)

	res := s.Fetch([]uint64{1}, nil)
	assert.True(t, res.Found.IsEmpty(), "entries past ttl+grace are gone")
}

func TestTTLStorageMissingTTL(t *testing.T) {
	s := NewTTL[uint64](time.Minute, WithMissingTTL(20*time.Millisecond))
	defer s.Close()

	s.InsertMissing(7)

	res := s.Fetch([]uint64{7}, nil)
	require.True(t, res.Missing.Contains(0))
	require.True(t, res.Expired.IsEmpty())

	time.Sleep(40 * time.Millisecond)

	res = s.Fetch([]uint64{7}, nil)
	assert.True(t, res.Found.Contains(0))
	assert.True(t, res.Expired.Contains(0), "negative entries go stale on their own TTL")
}

func TestTTLStorageInsertOverwritesMissing(t *testing.T) {
	s := NewTTL[string](time.Minute)
	defer s.Close()

	s.InsertMissing("k")
	s.Insert("k", Row{Values: []any{"v"}})

	res := s.Fetch([]string{"k"}, nil)
	assert.True(t, res.Found.Contains(0))
	assert.True(t, res.Missing.IsEmpty())
	assert.Equal(t, []any{"v"}, res.Rows[0].Values)
}

func TestTTLStorageDelete(t *testing.T) {
	s := NewTTL[uint64](time.Minute)
	defer s.Close()

	s.Insert(1, Row{Values: []any{uint64(1)}})
	assert.True(t, s.Delete(1))
	assert.False(t, s.Delete(1))
	assert.Equal(t, 0, s.Len())
}
