package gfio

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Giulio2002/gfio/internal/fd"
	"github.com/Giulio2002/gfio/mmap"
)

// mapFile creates every mapping a MemoryMappedFile owns. Tests swap it to
// exercise failure paths.
var mapFile = mmap.New

// region is a mapping shared between a MemoryMappedFile and the buffers it
// exported. refs counts the file (while open) plus every live alias buffer;
// the mapping is unmapped when it reaches zero.
type region struct {
	m        *mmap.Map // nil while the mapped length is zero
	partial  bool
	writable bool
	refs     atomic.Int64
}

func (r *region) data() []byte {
	if r.m == nil {
		return nil
	}
	return r.m.Data()
}

func (r *region) size() int64 {
	if r.m == nil {
		return 0
	}
	return r.m.Size()
}

func (r *region) release([]byte) {
	if r.refs.Add(-1) == 0 && r.m != nil {
		r.m.Close()
	}
}

// MemoryMappedFile reads and writes a file through a memory mapping.
//
// ReadAt, ReadAtInto, Peek, Size and WillNeed may run concurrently with each
// other. Operations that move the cursor or touch the mapping's contents or
// extent (Read, ReadInto, Write, WriteAt, Seek, Resize, Close) take an
// exclusive lock and should be serialized by the caller.
//
// Read, ReadAt and Peek return buffers that alias the mapping. Each one pins
// the mapping until released; Resize fails while any is outstanding, and
// Close leaves the memory mapped until the last one is released.
type MemoryMappedFile struct {
	mu     sync.RWMutex // guards pos, region.m and closed transitions
	h      *fd.Handle
	mode   FileMode
	region *region
	pos    int64
	closed atomic.Bool
}

// CreateMemoryMappedFile creates path with size bytes, truncating any
// existing file, and maps all of it read-write.
func CreateMemoryMappedFile(path string, size int64) (*MemoryMappedFile, error) {
	if size < 0 {
		return nil, NewError(ErrInvalid, "negative size %d", size)
	}
	h, err := fd.OpenWritable(path, false, true, false)
	if err != nil {
		return nil, WrapError(ErrIO, err, "failed to open local file '%s'", path)
	}
	if err := h.Truncate(size); err != nil {
		h.Close()
		return nil, WrapError(ErrIO, err, "cannot size '%s' to %d bytes", path, size)
	}
	f, err := newMemoryMappedFile(h, ModeReadWrite, 0, -1)
	if err != nil {
		h.Close()
		return nil, err
	}
	return f, nil
}

// OpenMemoryMappedFile maps all of an existing file.
func OpenMemoryMappedFile(path string, mode FileMode) (*MemoryMappedFile, error) {
	return openMemoryMapped(path, mode, 0, -1)
}

// OpenMemoryMappedRegion maps length bytes of an existing file starting at
// offset. offset must be a multiple of mmap.Granularity(). The result cannot
// be resized.
func OpenMemoryMappedRegion(path string, mode FileMode, offset, length int64) (*MemoryMappedFile, error) {
	if err := checkRange(offset, length); err != nil {
		return nil, err
	}
	return openMemoryMapped(path, mode, offset, length)
}

func openMemoryMapped(path string, mode FileMode, offset, length int64) (*MemoryMappedFile, error) {
	var (
		h   *fd.Handle
		err error
	)
	switch mode {
	case ModeRead:
		h, err = fd.OpenReadable(path)
	case ModeReadWrite:
		h, err = fd.OpenReadWrite(path)
	default:
		return nil, NewError(ErrInvalid, "memory maps support read and readwrite modes, not %s", mode)
	}
	if err != nil {
		return nil, WrapError(ErrIO, err, "failed to open local file '%s'", path)
	}
	f, err := newMemoryMappedFile(h, mode, offset, length)
	if err != nil {
		h.Close()
		return nil, err
	}
	return f, nil
}

// newMemoryMappedFile maps [offset, offset+length) of h. A negative length
// maps the whole file.
func newMemoryMappedFile(h *fd.Handle, mode FileMode, offset, length int64) (*MemoryMappedFile, error) {
	size, err := h.Size()
	if err != nil {
		return nil, WrapError(ErrIO, err, "cannot get size of '%s'", h.Name())
	}

	r := &region{writable: mode == ModeReadWrite}
	if length >= 0 {
		if !mmap.Aligned(offset) {
			return nil, WrapError(ErrIO, mmap.ErrUnaligned, "offset %d is not a multiple of %d", offset, mmap.Granularity())
		}
		if offset > size || length > size-offset {
			return nil, NewError(ErrInvalid, "mapping of %d bytes at offset %d exceeds file size %d", length, offset, size)
		}
		r.partial = true
	} else {
		offset, length = 0, size
	}

	if length > 0 {
		n, err := toIndex(length)
		if err != nil {
			return nil, err
		}
		m, err := mapFile(h.Fd(), offset, n, r.writable)
		if err != nil {
			return nil, WrapError(ErrIO, err, "cannot map '%s'", h.Name())
		}
		r.m = m
	}
	r.refs.Store(1)

	f := &MemoryMappedFile{h: h, mode: mode, region: r}
	runtime.SetFinalizer(f, (*MemoryMappedFile).Close)
	return f, nil
}

// alias returns a buffer viewing up to n bytes at offset. Callers hold at
// least the read lock.
func (f *MemoryMappedFile) alias(offset, n int64) (*Buffer, error) {
	size := f.region.size()
	if offset >= size || n == 0 {
		return NewBuffer(nil), nil
	}
	n = min(n, size-offset)

	start, err := toIndex(offset)
	if err != nil {
		return nil, err
	}
	end, err := toIndex(offset + n)
	if err != nil {
		return nil, err
	}
	f.region.refs.Add(1)
	return newOwnedBuffer(f.region.data()[start:end:end], f.region), nil
}

// copyOut copies bytes at offset into p. Callers hold at least the read lock.
func (f *MemoryMappedFile) copyOut(offset int64, p []byte) (int64, error) {
	size := f.region.size()
	if offset >= size || len(p) == 0 {
		return 0, nil
	}
	start, err := toIndex(offset)
	if err != nil {
		return 0, err
	}
	return int64(copy(p, f.region.data()[start:])), nil
}

// Read returns a zero-copy buffer of up to n bytes at the cursor and
// advances the cursor.
func (f *MemoryMappedFile) Read(n int64) (*Buffer, error) {
	if n < 0 {
		return nil, NewError(ErrInvalid, "negative length %d", n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Load() {
		return nil, errClosed("memory map")
	}

	buf, err := f.alias(f.pos, n)
	if err != nil {
		return nil, err
	}
	f.pos += int64(buf.Len())
	return buf, nil
}

// ReadInto copies from the cursor into p and advances the cursor.
func (f *MemoryMappedFile) ReadInto(p []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Load() {
		return 0, errClosed("memory map")
	}

	n, err := f.copyOut(f.pos, p)
	if err != nil {
		return 0, err
	}
	f.pos += n
	return n, nil
}

// ReadAt returns a zero-copy buffer of up to n bytes at offset.
func (f *MemoryMappedFile) ReadAt(offset, n int64) (*Buffer, error) {
	if err := checkRange(offset, n); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed.Load() {
		return nil, errClosed("memory map")
	}
	return f.alias(offset, n)
}

// ReadAtInto copies up to len(p) bytes at offset into p.
func (f *MemoryMappedFile) ReadAtInto(offset int64, p []byte) (int64, error) {
	if err := checkRange(offset, int64(len(p))); err != nil {
		return 0, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed.Load() {
		return 0, errClosed("memory map")
	}
	return f.copyOut(offset, p)
}

// Peek returns a zero-copy buffer of up to n bytes at the cursor without
// advancing it.
func (f *MemoryMappedFile) Peek(n int64) (*Buffer, error) {
	if n < 0 {
		return nil, NewError(ErrInvalid, "negative length %d", n)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed.Load() {
		return nil, errClosed("memory map")
	}
	return f.alias(f.pos, n)
}

// Write copies p into the mapping at the cursor and advances it. Writes that
// do not fit in the mapping fail without copying anything or moving the
// cursor.
func (f *MemoryMappedFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeAt(p, f.pos); err != nil {
		return 0, err
	}
	f.pos += int64(len(p))
	return len(p), nil
}

// WriteAt copies p into the mapping at offset without moving the cursor.
func (f *MemoryMappedFile) WriteAt(p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, NewError(ErrInvalid, "negative offset %d", offset)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeAt(p, offset); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *MemoryMappedFile) writeAt(p []byte, offset int64) error {
	if f.closed.Load() {
		return errClosed("memory map")
	}
	if !f.region.writable {
		return NewError(ErrIO, "memory map was not opened for writing")
	}
	size := f.region.size()
	if offset > size || int64(len(p)) > size-offset {
		return NewError(ErrIO, "cannot write %d bytes at offset %d past the end of a %d byte memory map", len(p), offset, size)
	}
	if len(p) == 0 {
		return nil
	}
	start, err := toIndex(offset)
	if err != nil {
		return err
	}
	copy(f.region.data()[start:], p)
	return nil
}

// Flush is a no-op; use Sync to write dirty pages back to the file.
func (f *MemoryMappedFile) Flush() error {
	if f.closed.Load() {
		return errClosed("memory map")
	}
	return nil
}

// Sync writes modified pages back to the file.
func (f *MemoryMappedFile) Sync() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed.Load() {
		return errClosed("memory map")
	}
	if f.region.m == nil {
		return nil
	}
	if err := f.region.m.Sync(); err != nil {
		return WrapError(ErrIO, err, "cannot sync memory map")
	}
	return nil
}

// Seek moves the cursor to offset, which must lie within the mapping.
func (f *MemoryMappedFile) Seek(offset int64) error {
	if offset < 0 {
		return NewError(ErrInvalid, "negative seek offset %d", offset)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Load() {
		return errClosed("memory map")
	}
	if size := f.region.size(); offset > size {
		return NewError(ErrInvalid, "cannot seek to %d past the end of a %d byte memory map", offset, size)
	}
	f.pos = offset
	return nil
}

// Tell returns the cursor.
func (f *MemoryMappedFile) Tell() (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed.Load() {
		return -1, errClosed("memory map")
	}
	return f.pos, nil
}

// Size returns the mapped length.
func (f *MemoryMappedFile) Size() (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed.Load() {
		return -1, errClosed("memory map")
	}
	return f.region.size(), nil
}

// Resize sets both the file length and the mapped length to size. Only
// whole-file read-write mappings can be resized, and only while no buffer
// from Read, ReadAt or Peek is outstanding. Bytes below min(old, new size)
// are preserved; the cursor is clamped to the new size.
func (f *MemoryMappedFile) Resize(size int64) error {
	if size < 0 {
		return NewError(ErrInvalid, "negative size %d", size)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Load() {
		return errClosed("memory map")
	}
	if !f.region.writable {
		return NewError(ErrIO, "cannot resize a read-only memory map")
	}
	if f.region.partial {
		return NewError(ErrIO, "cannot resize a memory map of part of a file")
	}
	if exported := f.region.refs.Load() - 1; exported > 0 {
		return NewError(ErrIO, "cannot resize memory map while there are %d active readers", exported)
	}

	cur := f.region.size()
	if size == cur {
		return nil
	}
	// The file must cover the mapping at all times: grow the file before
	// the mapping, shrink it after.
	if size > cur {
		if err := f.h.Truncate(size); err != nil {
			return WrapError(ErrIO, err, "cannot resize file to %d bytes", size)
		}
	}
	if err := f.remap(size); err != nil {
		if size > cur {
			f.h.Truncate(cur)
		}
		return err
	}
	if size < cur {
		if err := f.h.Truncate(size); err != nil {
			return WrapError(ErrIO, err, "cannot resize file to %d bytes", size)
		}
	}
	f.pos = min(f.pos, size)
	return nil
}

func (f *MemoryMappedFile) remap(size int64) error {
	r := f.region
	switch {
	case size == 0:
		if err := r.m.Close(); err != nil {
			return WrapError(ErrIO, err, "cannot unmap")
		}
		r.m = nil
	case r.m == nil:
		n, err := toIndex(size)
		if err != nil {
			return err
		}
		m, err := mapFile(f.h.Fd(), 0, n, true)
		if err != nil {
			return WrapError(ErrIO, err, "cannot map %d bytes", size)
		}
		r.m = m
	default:
		if err := r.m.Remap(size); err != nil {
			if r.m.Data() == nil {
				r.m = nil
			}
			return WrapError(ErrIO, err, "cannot remap to %d bytes", size)
		}
	}
	return nil
}

// WillNeed asks the kernel to read ahead the given ranges.
func (f *MemoryMappedFile) WillNeed(ranges []ReadRange) error {
	for _, rr := range ranges {
		if err := checkRange(rr.Offset, rr.Length); err != nil {
			return err
		}
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed.Load() {
		return errClosed("memory map")
	}
	if f.region.m == nil {
		return nil
	}
	size := f.region.size()
	for _, rr := range ranges {
		if rr.Offset >= size {
			continue
		}
		if err := f.region.m.AdviseWillNeed(rr.Offset, rr.Length); err != nil {
			return WrapError(ErrIO, err, "madvise failed")
		}
	}
	return nil
}

// Close closes the descriptor and drops the file's pin on the mapping.
// Buffers obtained earlier stay readable until released.
func (f *MemoryMappedFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(f, nil)

	err := f.h.Close()
	f.region.release(nil)
	if err != nil {
		return WrapError(ErrIO, err, "error closing file")
	}
	return nil
}

func (f *MemoryMappedFile) Closed() bool {
	return f.closed.Load()
}

// Fd returns the descriptor, or -1 after Close.
func (f *MemoryMappedFile) Fd() int {
	return f.h.Fd()
}

func (f *MemoryMappedFile) Mode() FileMode {
	return f.mode
}

// SupportsZeroCopy is true: reads return views of the mapping.
func (f *MemoryMappedFile) SupportsZeroCopy() bool {
	return true
}

// Partial reports whether only part of the file is mapped.
func (f *MemoryMappedFile) Partial() bool {
	return f.region.partial
}
