// Package memory provides the allocators gfio draws heap buffers from.
package memory

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrOutOfMemory is returned when an allocator cannot satisfy a request.
var ErrOutOfMemory = errors.New("memory: out of memory")

// Allocator hands out and takes back byte slices. Implementations must be
// safe for concurrent use.
type Allocator interface {
	// Allocate returns a zeroed slice of length size.
	Allocate(size int) ([]byte, error)

	// Reallocate resizes buf to size, preserving min(len(buf), size) bytes.
	// The returned slice replaces buf; buf must not be used afterwards.
	Reallocate(buf []byte, size int) ([]byte, error)

	// Free returns buf to the allocator.
	Free(buf []byte)

	// BytesAllocated returns the number of bytes currently outstanding.
	BytesAllocated() int64

	// NumAllocations returns the number of Allocate calls that succeeded.
	NumAllocations() int64

	// BackendName identifies the implementation.
	BackendName() string
}

// GoAllocator allocates from the Go heap.
type GoAllocator struct {
	bytes  atomic.Int64
	allocs atomic.Int64
}

var defaultAllocator = NewGoAllocator()

// DefaultAllocator returns the process-wide Go heap allocator.
func DefaultAllocator() Allocator {
	return defaultAllocator
}

// NewGoAllocator returns an allocator with its own counters.
func NewGoAllocator() *GoAllocator {
	return &GoAllocator{}
}

func (a *GoAllocator) Allocate(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: negative allocation size %d", size)
	}
	buf := make([]byte, size)
	a.bytes.Add(int64(size))
	a.allocs.Add(1)
	return buf, nil
}

func (a *GoAllocator) Reallocate(buf []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: negative allocation size %d", size)
	}
	old := len(buf)
	if size <= cap(buf) {
		buf = buf[:size]
		// A regrown tail must read as zeros.
		if size > old {
			clear(buf[old:])
		}
	} else {
		grown := make([]byte, size)
		copy(grown, buf)
		buf = grown
	}
	a.bytes.Add(int64(size - old))
	return buf, nil
}

func (a *GoAllocator) Free(buf []byte) {
	a.bytes.Add(-int64(len(buf)))
}

func (a *GoAllocator) BytesAllocated() int64 { return a.bytes.Load() }

func (a *GoAllocator) NumAllocations() int64 { return a.allocs.Load() }

func (a *GoAllocator) BackendName() string { return "go" }

// CappedAllocator fails requests that would take a parent allocator above a
// byte limit.
type CappedAllocator struct {
	parent Allocator
	limit  int64
	used   atomic.Int64
}

// NewCappedAllocator limits parent to limit outstanding bytes.
func NewCappedAllocator(parent Allocator, limit int64) *CappedAllocator {
	return &CappedAllocator{parent: parent, limit: limit}
}

func (a *CappedAllocator) reserve(delta int64) bool {
	for {
		used := a.used.Load()
		if delta > 0 && used+delta > a.limit {
			return false
		}
		if a.used.CompareAndSwap(used, used+delta) {
			return true
		}
	}
}

func (a *CappedAllocator) Allocate(size int) ([]byte, error) {
	if !a.reserve(int64(size)) {
		return nil, fmt.Errorf("%w: allocating %d bytes over limit %d", ErrOutOfMemory, size, a.limit)
	}
	buf, err := a.parent.Allocate(size)
	if err != nil {
		a.reserve(-int64(size))
		return nil, err
	}
	return buf, nil
}

func (a *CappedAllocator) Reallocate(buf []byte, size int) ([]byte, error) {
	delta := int64(size - len(buf))
	if !a.reserve(delta) {
		return nil, fmt.Errorf("%w: reallocating %d to %d bytes over limit %d", ErrOutOfMemory, len(buf), size, a.limit)
	}
	out, err := a.parent.Reallocate(buf, size)
	if err != nil {
		a.reserve(-delta)
		return nil, err
	}
	return out, nil
}

func (a *CappedAllocator) Free(buf []byte) {
	a.reserve(-int64(len(buf)))
	a.parent.Free(buf)
}

func (a *CappedAllocator) BytesAllocated() int64 { return a.used.Load() }

func (a *CappedAllocator) NumAllocations() int64 { return a.parent.NumAllocations() }

func (a *CappedAllocator) BackendName() string { return "capped(" + a.parent.BackendName() + ")" }
