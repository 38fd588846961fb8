//go:build linux

package mmap

import "golang.org/x/sys/unix"

// remapInPlace uses mremap, which keeps x/sys's mapping registry in sync so
// the returned slice can later be passed to Munmap.
func remapInPlace(buf []byte, size int) ([]byte, error) {
	return unix.Mremap(buf, size, unix.MREMAP_MAYMOVE)
}
