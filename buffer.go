package gfio

import (
	"bytes"
	"sync/atomic"

	"github.com/Giulio2002/gfio/memory"
)

// releaser takes back the memory behind a Buffer.
type releaser interface {
	release(data []byte)
}

type allocatorRef struct {
	memory.Allocator
}

func (a allocatorRef) release(data []byte) {
	a.Free(data)
}

// Buffer is an immutable view of bytes returned by a read. It either owns
// memory from an allocator or aliases a memory mapping. Bytes is valid until
// Release, and only Release gives the memory back: a Buffer that is dropped
// without it keeps its allocator memory accounted and its mapping pinned.
type Buffer struct {
	data     []byte
	owner    releaser
	released atomic.Bool
}

// NewBuffer wraps caller-owned bytes. Release is a no-op for such buffers.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

func newOwnedBuffer(data []byte, owner releaser) *Buffer {
	return &Buffer{data: data, owner: owner}
}

// Bytes returns the buffer contents. Callers must not modify them or use
// them after Release.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the buffer size in bytes.
func (b *Buffer) Len() int {
	return len(b.Bytes())
}

func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Equals reports whether both buffers hold the same bytes. A nil buffer
// equals an empty one.
func (b *Buffer) Equals(other *Buffer) bool {
	return bytes.Equal(b.Bytes(), other.Bytes())
}

// EqualBytes reports whether the buffer holds exactly p.
func (b *Buffer) EqualBytes(p []byte) bool {
	return bytes.Equal(b.data, p)
}

// Mapped reports whether the buffer aliases a memory mapping.
func (b *Buffer) Mapped() bool {
	_, ok := b.owner.(*region)
	return ok
}

// Release hands the memory back to its owner. For mapped buffers this drops
// the pin on the mapping. Calling Release more than once is harmless.
func (b *Buffer) Release() {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return
	}
	if b.owner != nil {
		b.owner.release(b.data)
	}
	b.data = nil
}
