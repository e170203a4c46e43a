package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAlloc(t *testing.T) {
	a := New(16)

	b1 := a.Alloc(8)
	require.Len(t, b1, 8)
	copy(b1, "12345678")

	// Force a second chunk.
	b2 := a.Alloc(12)
	require.Len(t, b2, 12)
	copy(b2, "abcdefghijkl")

	assert.Equal(t, "12345678", string(b1))
	assert.Equal(t, "abcdefghijkl", string(b2))
	assert.Equal(t, 20, a.Size())
}

func TestArenaAllocDoesNotAlias(t *testing.T) {
	a := New(64)

	b1 := a.Alloc(4)
	b2 := a.Alloc(4)

	copy(b1, "aaaa")
	copy(b2, "bbbb")

	// Appending to b1 must not clobber b2 (cap == len).
	b1 = append(b1, 'x')
	assert.Equal(t, "bbbb", string(b2))
	assert.Equal(t, "aaaax", string(b1))
}

func TestArenaCopyOutlivesSource(t *testing.T) {
	a := New(0)

	src := []byte("hello world")
	cp := a.Copy(src)

	// Mutating the source must not affect the arena copy.
	for i := range src {
		src[i] = 'x'
	}

	assert.Equal(t, "hello world", string(cp))
}

func TestArenaInternBytes(t *testing.T) {
	a := New(0)

	src := []byte("complex-key")
	s := a.InternBytes(src)
	src[0] = 'X'

	assert.Equal(t, "complex-key", s)
	assert.Equal(t, "", a.InternBytes(nil))
}

func TestArenaReset(t *testing.T) {
	a := New(32)
	a.Alloc(10)
	require.Equal(t, 10, a.Size())

	a.Reset()
	assert.Equal(t, 0, a.Size())

	b := a.Alloc(5)
	assert.Len(t, b, 5)
}
