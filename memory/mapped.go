//go:build unix

package memory

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/Giulio2002/gfio/mmap"
)

const (
	// DefaultSlotSize is the slot size used when NewMappedAllocator gets 0.
	DefaultSlotSize = 64 << 10

	// DefaultSegmentSlots is the number of slots per segment used when
	// NewMappedAllocator gets 0.
	DefaultSegmentSlots = 256

	// MaxSegments bounds how many segments a MappedAllocator creates before
	// sending every request to its fallback.
	MaxSegments = 256
)

// ErrAllocatorClosed is returned by a MappedAllocator after Close.
var ErrAllocatorClosed = errors.New("memory: allocator closed")

type segment struct {
	m    *mmap.Map
	free *slotBitmap
}

type slotRef struct {
	seg  int
	slot uint32
}

// MappedAllocator serves requests of up to one slot from fixed-size slots in
// memory-mapped scratch files, keeping those buffers off the Go heap. Larger
// requests, and every request once MaxSegments segments are full, go to the
// fallback allocator.
//
// Segments are added on demand and never moved, so slices handed out stay
// valid until freed or until Close.
type MappedAllocator struct {
	mu       sync.Mutex
	dir      string
	slotSize int
	segSlots uint32
	segments []*segment
	cur      int               // first segment that may have a free slot
	slots    map[*byte]slotRef // first byte of each live slot buffer
	fallback Allocator
	closed   bool

	bytes  atomic.Int64
	allocs atomic.Int64
}

// NewMappedAllocator creates an allocator whose scratch files live in dir
// (os.TempDir() when empty). The files are unlinked as soon as they are
// mapped. A nil fallback means DefaultAllocator().
func NewMappedAllocator(dir string, slotSize, segmentSlots int, fallback Allocator) (*MappedAllocator, error) {
	if slotSize < 0 || segmentSlots < 0 {
		return nil, fmt.Errorf("memory: invalid slot geometry %dx%d", segmentSlots, slotSize)
	}
	if slotSize == 0 {
		slotSize = DefaultSlotSize
	}
	if segmentSlots == 0 {
		segmentSlots = DefaultSegmentSlots
	}
	if fallback == nil {
		fallback = DefaultAllocator()
	}

	a := &MappedAllocator{
		dir:      dir,
		slotSize: slotSize,
		segSlots: uint32(segmentSlots),
		slots:    make(map[*byte]slotRef),
		fallback: fallback,
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.addSegment(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *MappedAllocator) addSegment() error {
	f, err := os.CreateTemp(a.dir, "gfio-slab-*")
	if err != nil {
		return err
	}
	// The mapping keeps the file alive.
	defer os.Remove(f.Name())
	defer f.Close()

	size := int64(a.segSlots) * int64(a.slotSize)
	if err := f.Truncate(size); err != nil {
		return err
	}
	m, err := mmap.New(int(f.Fd()), 0, int(size), true)
	if err != nil {
		return err
	}
	a.segments = append(a.segments, &segment{m: m, free: newSlotBitmap(a.segSlots)})
	return nil
}

// takeSlot returns a zeroed slot buffer of length size, or nil when no slot
// can be had. Callers hold mu.
func (a *MappedAllocator) takeSlot(size int) []byte {
	for {
		for ; a.cur < len(a.segments); a.cur++ {
			seg := a.segments[a.cur]
			slot, ok := seg.free.take()
			if !ok {
				continue
			}
			off := int(slot) * a.slotSize
			buf := seg.m.Data()[off : off+size : off+a.slotSize]
			clear(buf)
			a.slots[&buf[0]] = slotRef{seg: a.cur, slot: slot}
			return buf
		}
		if len(a.segments) >= MaxSegments || a.addSegment() != nil {
			return nil
		}
	}
}

// putSlot frees buf if it is a slot buffer. Callers hold mu.
func (a *MappedAllocator) putSlot(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	ref, ok := a.slots[&buf[0]]
	if !ok {
		return false
	}
	delete(a.slots, &buf[0])
	a.segments[ref.seg].free.put(ref.slot)
	a.cur = min(a.cur, ref.seg)
	return true
}

func (a *MappedAllocator) Allocate(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: negative allocation size %d", size)
	}
	var buf []byte
	if size > 0 && size <= a.slotSize {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return nil, ErrAllocatorClosed
		}
		buf = a.takeSlot(size)
		a.mu.Unlock()
	}
	if buf == nil {
		var err error
		if buf, err = a.fallback.Allocate(size); err != nil {
			return nil, err
		}
	}
	a.bytes.Add(int64(size))
	a.allocs.Add(1)
	return buf, nil
}

func (a *MappedAllocator) Reallocate(buf []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: negative allocation size %d", size)
	}
	old := len(buf)

	a.mu.Lock()
	_, isSlot := a.slots[firstByte(buf)]
	if isSlot && size > 0 && size <= a.slotSize {
		a.mu.Unlock()
		out := buf[:size]
		if size > old {
			clear(out[old:])
		}
		a.bytes.Add(int64(size - old))
		return out, nil
	}
	a.mu.Unlock()

	if !isSlot {
		out, err := a.fallback.Reallocate(buf, size)
		if err != nil {
			return nil, err
		}
		a.bytes.Add(int64(size - old))
		return out, nil
	}

	// A slot buffer outgrowing its slot moves to the fallback.
	out, err := a.fallback.Allocate(size)
	if err != nil {
		return nil, err
	}
	copy(out, buf)
	a.mu.Lock()
	a.putSlot(buf)
	a.mu.Unlock()
	a.bytes.Add(int64(size - old))
	return out, nil
}

func (a *MappedAllocator) Free(buf []byte) {
	a.mu.Lock()
	freed := a.putSlot(buf)
	a.mu.Unlock()
	if !freed {
		a.fallback.Free(buf)
	}
	a.bytes.Add(-int64(len(buf)))
}

func (a *MappedAllocator) BytesAllocated() int64 { return a.bytes.Load() }

func (a *MappedAllocator) NumAllocations() int64 { return a.allocs.Load() }

func (a *MappedAllocator) BackendName() string { return "mmap" }

// SlotsInUse returns the number of live slot buffers.
func (a *MappedAllocator) SlotsInUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n uint32
	for _, seg := range a.segments {
		n += seg.free.used()
	}
	return int(n)
}

// Segments returns the number of mapped segments.
func (a *MappedAllocator) Segments() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.segments)
}

// Close unmaps every segment. Slot buffers still held become invalid; heap
// buffers from the fallback are unaffected.
func (a *MappedAllocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	for _, seg := range a.segments {
		if err := seg.m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.segments = nil
	a.cur = 0
	clear(a.slots)
	return firstErr
}

func firstByte(buf []byte) *byte {
	if len(buf) == 0 {
		return nil
	}
	return &buf[0]
}
