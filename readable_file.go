package gfio

import (
	"sync"
	"sync/atomic"

	"github.com/Giulio2002/gfio/internal/fd"
	"github.com/Giulio2002/gfio/memory"
)

// ReadableFile reads a seekable descriptor. It keeps its own sequential
// cursor and never relies on the OS file offset after opening: Read and
// ReadInto use the cursor, ReadAt and ReadAtInto use pread and may run
// concurrently from any number of goroutines.
//
// A positional read leaves the cursor stale. Read, ReadInto and Tell fail
// with ErrInvalidState until the next Seek.
type ReadableFile struct {
	mu    sync.Mutex // guards pos
	h     *fd.Handle
	alloc memory.Allocator
	pos   int64
	stale atomic.Bool
}

// OpenReadableFile opens path for reading.
func OpenReadableFile(path string, opts ...Option) (*ReadableFile, error) {
	h, err := fd.OpenReadable(path)
	if err != nil {
		return nil, WrapError(ErrIO, err, "failed to open local file '%s'", path)
	}
	f, err := newReadableFile(h, opts)
	if err != nil {
		h.Close()
		return nil, err
	}
	return f, nil
}

// NewReadableFile takes ownership of a readable descriptor. Reading starts at
// the descriptor's current offset. Descriptors that cannot seek, such as
// pipes, are rejected and left open for the caller.
func NewReadableFile(descriptor int, opts ...Option) (*ReadableFile, error) {
	if descriptor < 0 {
		return nil, NewError(ErrInvalid, "invalid file descriptor %d", descriptor)
	}
	h := fd.Adopt(descriptor)
	f, err := newReadableFile(h, opts)
	if err != nil {
		h.Detach()
		return nil, err
	}
	return f, nil
}

func newReadableFile(h *fd.Handle, opts []Option) (*ReadableFile, error) {
	o := buildOptions(opts)

	pos, err := h.Tell()
	if err != nil {
		return nil, WrapError(ErrIO, err, "file descriptor is not seekable")
	}
	return &ReadableFile{h: h, alloc: o.alloc, pos: pos}, nil
}

// Read returns up to n bytes from the cursor and advances it by the number of
// bytes read. A short buffer at end of file is not an error.
func (f *ReadableFile) Read(n int64) (*Buffer, error) {
	if n < 0 {
		return nil, NewError(ErrInvalid, "negative length %d", n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkSequential(); err != nil {
		return nil, err
	}

	buf, err := f.readAt(f.pos, n)
	if err != nil {
		return nil, err
	}
	f.pos += int64(buf.Len())
	return buf, nil
}

// ReadInto reads into p from the cursor and advances it.
func (f *ReadableFile) ReadInto(p []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkSequential(); err != nil {
		return 0, err
	}

	n, err := f.h.ReadAt(p, f.pos)
	if err != nil {
		return 0, WrapError(ErrIO, err, "error reading from file")
	}
	f.pos += int64(n)
	return int64(n), nil
}

func (f *ReadableFile) checkSequential() error {
	if f.h.Closed() {
		return errClosed("file")
	}
	if f.stale.Load() {
		return NewError(ErrInvalidState, "need seeking after ReadAt() before calling implicitly-positioned operation")
	}
	return nil
}

// ReadAt returns up to n bytes starting at offset. The cursor becomes stale.
func (f *ReadableFile) ReadAt(offset, n int64) (*Buffer, error) {
	if err := checkRange(offset, n); err != nil {
		return nil, err
	}
	if f.h.Closed() {
		return nil, errClosed("file")
	}
	f.stale.Store(true)
	return f.readAt(offset, n)
}

// ReadAtInto reads up to len(p) bytes at offset into p. The cursor becomes
// stale.
func (f *ReadableFile) ReadAtInto(offset int64, p []byte) (int64, error) {
	if err := checkRange(offset, int64(len(p))); err != nil {
		return 0, err
	}
	if f.h.Closed() {
		return 0, errClosed("file")
	}
	f.stale.Store(true)

	n, err := f.h.ReadAt(p, offset)
	if err != nil {
		return 0, WrapError(ErrIO, err, "error reading from file")
	}
	return int64(n), nil
}

// readAt allocates n bytes, fills them with pread and shrinks the allocation
// on a short read.
func (f *ReadableFile) readAt(offset, n int64) (*Buffer, error) {
	size, err := toIndex(n)
	if err != nil {
		return nil, err
	}
	data, err := f.alloc.Allocate(size)
	if err != nil {
		return nil, WrapError(ErrIO, err, "cannot allocate %d bytes", n)
	}

	got, err := f.h.ReadAt(data, offset)
	if err != nil {
		f.alloc.Free(data)
		return nil, WrapError(ErrIO, err, "error reading from file")
	}
	if got < size {
		shrunk, err := f.alloc.Reallocate(data, got)
		if err != nil {
			f.alloc.Free(data)
			return nil, WrapError(ErrIO, err, "cannot shrink buffer to %d bytes", got)
		}
		data = shrunk
	}
	return newOwnedBuffer(data, allocatorRef{f.alloc}), nil
}

// Seek moves the cursor. Offsets past end of file are allowed and yield
// empty reads.
func (f *ReadableFile) Seek(offset int64) error {
	if offset < 0 {
		return NewError(ErrInvalid, "negative seek offset %d", offset)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.h.Closed() {
		return errClosed("file")
	}
	f.pos = offset
	f.stale.Store(false)
	return nil
}

// Tell returns the cursor.
func (f *ReadableFile) Tell() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkSequential(); err != nil {
		return -1, err
	}
	return f.pos, nil
}

// Size returns the current file length.
func (f *ReadableFile) Size() (int64, error) {
	if f.h.Closed() {
		return -1, errClosed("file")
	}
	size, err := f.h.Size()
	if err != nil {
		return -1, WrapError(ErrIO, err, "cannot get size of '%s'", f.h.Name())
	}
	return size, nil
}

// Peek is not supported by descriptor-backed files.
func (f *ReadableFile) Peek(n int64) (*Buffer, error) {
	return nil, NewError(ErrNotImplemented, "peek not implemented for descriptor-backed files")
}

// SupportsZeroCopy is false: every read copies into an allocated buffer.
func (f *ReadableFile) SupportsZeroCopy() bool {
	return false
}

// WillNeed validates the ranges; descriptor-backed files do no read-ahead.
func (f *ReadableFile) WillNeed(ranges []ReadRange) error {
	for _, r := range ranges {
		if err := checkRange(r.Offset, r.Length); err != nil {
			return err
		}
	}
	if f.h.Closed() {
		return errClosed("file")
	}
	return nil
}

// Close closes the descriptor. Further calls return nil.
func (f *ReadableFile) Close() error {
	if err := f.h.Close(); err != nil {
		return WrapError(ErrIO, err, "error closing file")
	}
	return nil
}

func (f *ReadableFile) Closed() bool {
	return f.h.Closed()
}

// Fd returns the descriptor, or -1 after Close.
func (f *ReadableFile) Fd() int {
	return f.h.Fd()
}

func (f *ReadableFile) Mode() FileMode {
	return ModeRead
}
