//go:build unix

// Package mmap maps file ranges into memory for gfio. A Map is not safe for
// concurrent use; callers serialize access to it.
package mmap

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSize  = errors.New("mmap: invalid size")
	ErrInvalidRange = errors.New("mmap: invalid range")
	ErrNotMapped    = errors.New("mmap: not mapped")
	ErrUnaligned    = errors.New("mmap: offset not aligned to mapping granularity")
	ErrPartialRemap = errors.New("mmap: only mappings starting at offset 0 can be resized")
)

// Map is one shared mapping of [offset, offset+len(Data())) of a file.
type Map struct {
	buf      []byte
	fd       int
	off      int64
	writable bool
}

// Data returns the mapped bytes, or nil once the map is closed.
func (m *Map) Data() []byte { return m.buf }

// Size returns len(Data()).
func (m *Map) Size() int64 { return int64(len(m.buf)) }

// Aligned reports whether offset may start a mapping.
func Aligned(offset int64) bool {
	return offset%Granularity() == 0
}

func sysErr(op string, err error) error {
	return fmt.Errorf("mmap: %s: %w", op, err)
}
