//go:build unix && !linux

package mmap

import "errors"

func remapInPlace([]byte, int) ([]byte, error) {
	return nil, errors.New("mmap: mremap unsupported")
}
