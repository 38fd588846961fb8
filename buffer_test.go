package gfio

import (
	"testing"

	"github.com/Giulio2002/gfio/memory"
)

func TestBufferNil(t *testing.T) {
	var b *Buffer
	if b.Len() != 0 || b.Bytes() != nil || b.String() != "" {
		t.Fatal("nil buffer is not empty")
	}
	b.Release()

	if !NewBuffer(nil).Equals(nil) || !b.Equals(NewBuffer([]byte{})) {
		t.Fatal("nil and empty buffers differ")
	}
	if NewBuffer([]byte("x")).Equals(nil) {
		t.Fatal("non-empty buffer equals nil")
	}
}

func TestBufferRelease(t *testing.T) {
	alloc := memory.NewGoAllocator()
	data, err := alloc.Allocate(4)
	if err != nil {
		t.Fatal(err)
	}
	copy(data, "test")
	b := newOwnedBuffer(data, allocatorRef{alloc})

	if !b.EqualBytes([]byte("test")) || b.Mapped() {
		t.Fatalf("buffer: %q mapped=%v", b, b.Mapped())
	}
	b.Release()
	b.Release()
	if b.Len() != 0 || alloc.BytesAllocated() != 0 {
		t.Fatalf("after release: len=%d allocated=%d", b.Len(), alloc.BytesAllocated())
	}
}
