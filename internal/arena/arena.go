// Package arena provides a chunked bump allocator.
//
// It is used to give serialized complex keys a lifetime that is independent
// of the column buffers they were built from: key bytes are copied into the
// arena once, and every reference handed out stays valid until the arena
// itself is garbage collected.
//
// # Concurrency Model
//
// An Arena is NOT safe for concurrent use. The intended pattern is to fill
// it while a request unit is being constructed (single goroutine) and treat
// it as read-only afterwards.
package arena

import "unsafe"

// DefaultChunkSize is the default size of a chunk (4 KiB).
const DefaultChunkSize = 4096

// Arena is a chunked bump allocator. The zero value is not usable; call New.
type Arena struct {
	chunkSize int
	chunks    [][]byte
	used      int
}

// New creates a new Arena. If chunkSize <= 0, DefaultChunkSize is used.
func New(chunkSize int) *Arena {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Arena{chunkSize: chunkSize}
}

// Alloc returns a zeroed region of n bytes owned by the arena. The returned
// slice has cap == len, so appending to it never aliases later allocations.
func (a *Arena) Alloc(n int) []byte {
	if n == 0 {
		return nil
	}

	last := len(a.chunks) - 1
	if last < 0 || cap(a.chunks[last])-len(a.chunks[last]) < n {
		size := a.chunkSize
		if n > size {
			size = n
		}
		a.chunks = append(a.chunks, make([]byte, 0, size))
		last = len(a.chunks) - 1
	}

	c := a.chunks[last]
	off := len(c)
	c = c[: off+n : off+n]
	a.chunks[last] = c
	a.used += n

	return c[off:]
}

// Copy copies b into the arena and returns the arena-owned copy.
func (a *Arena) Copy(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	dst := a.Alloc(len(b))
	copy(dst, b)
	return dst
}

// InternBytes copies b into the arena and returns a string view over the
// arena-owned bytes. No additional allocation is performed for the string
// header's data.
func (a *Arena) InternBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	dst := a.Copy(b)
	return unsafe.String(unsafe.SliceData(dst), len(dst))
}

// Size returns the total number of bytes handed out by Alloc.
func (a *Arena) Size() int {
	return a.used
}

// Reset drops all chunks. References returned before Reset stay valid for as
// long as the caller holds them, but the arena no longer accounts for them.
func (a *Arena) Reset() {
	a.chunks = nil
	a.used = 0
}
