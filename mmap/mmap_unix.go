//go:build unix

package mmap

import (
	"golang.org/x/sys/unix"
)

var granularity = int64(unix.Getpagesize())

// Granularity is the page size; mapping offsets are multiples of it.
func Granularity() int64 { return granularity }

// New maps length bytes of fd starting at offset. The mapping outlives fd.
func New(fd int, offset int64, length int, writable bool) (*Map, error) {
	switch {
	case length <= 0:
		return nil, ErrInvalidSize
	case offset < 0:
		return nil, ErrInvalidRange
	case !Aligned(offset):
		return nil, ErrUnaligned
	}
	m := &Map{fd: fd, off: offset, writable: writable}
	buf, err := unix.Mmap(fd, offset, length, m.prot(), unix.MAP_SHARED)
	if err != nil {
		return nil, sysErr("mmap", err)
	}
	m.buf = buf
	return m, nil
}

func (m *Map) prot() int {
	if m.writable {
		return unix.PROT_READ | unix.PROT_WRITE
	}
	return unix.PROT_READ
}

// Sync writes dirty pages back to the file and waits for completion. It is a
// no-op on read-only maps.
func (m *Map) Sync() error {
	if m.buf == nil {
		return ErrNotMapped
	}
	if !m.writable {
		return nil
	}
	if err := unix.Msync(m.buf, unix.MS_SYNC); err != nil {
		return sysErr("msync", err)
	}
	return nil
}

// Close unmaps. It does not close the descriptor and may be called twice.
func (m *Map) Close() error {
	buf := m.buf
	if buf == nil {
		return nil
	}
	m.buf = nil
	if err := unix.Munmap(buf); err != nil {
		return sysErr("munmap", err)
	}
	return nil
}

// Remap resizes a map that starts at file offset 0. The file must already
// cover newSize bytes. Data slices taken before the call must not be used
// after it. If the map cannot be re-established it is left closed.
func (m *Map) Remap(newSize int64) error {
	switch {
	case m.buf == nil:
		return ErrNotMapped
	case m.off != 0:
		return ErrPartialRemap
	case newSize <= 0:
		return ErrInvalidSize
	case newSize == m.Size():
		return nil
	}

	if buf, err := remapInPlace(m.buf, int(newSize)); err == nil {
		m.buf = buf
		return nil
	}

	old := m.buf
	m.buf = nil
	if err := unix.Munmap(old); err != nil {
		m.buf = old
		return sysErr("munmap", err)
	}
	buf, err := unix.Mmap(m.fd, 0, int(newSize), m.prot(), unix.MAP_SHARED)
	if err != nil {
		return sysErr("mmap", err)
	}
	m.buf = buf
	return nil
}

// AdviseWillNeed asks the kernel to start reading [offset, offset+length)
// in. The range is clamped to the map and widened down to a page boundary.
func (m *Map) AdviseWillNeed(offset, length int64) error {
	if m.buf == nil {
		return ErrNotMapped
	}
	if offset < 0 || length < 0 || offset > m.Size() {
		return ErrInvalidRange
	}
	start := offset - offset%granularity
	end := min(offset+length, m.Size())
	if start >= end {
		return nil
	}
	if err := unix.Madvise(m.buf[start:end], unix.MADV_WILLNEED); err != nil {
		return sysErr("madvise", err)
	}
	return nil
}
