package gfio

import (
	"github.com/Giulio2002/gfio/internal/fd"
)

// OutputStream writes sequentially to a descriptor. Writes go straight to the
// OS; there is no user-space buffering.
type OutputStream struct {
	h *fd.Handle
}

// OpenOutputStream opens path for writing, creating it if needed. Unless
// append is set the file is truncated; with append writes continue at the
// current end of file.
func OpenOutputStream(path string, append bool) (*OutputStream, error) {
	h, err := fd.OpenWritable(path, true, !append, append)
	if err != nil {
		return nil, WrapError(ErrIO, err, "failed to open local file '%s'", path)
	}
	return &OutputStream{h: h}, nil
}

// NewOutputStream takes ownership of a writable descriptor. The descriptor
// is used as is: no truncation and no seek.
func NewOutputStream(descriptor int) (*OutputStream, error) {
	if descriptor < 0 {
		return nil, NewError(ErrInvalid, "invalid file descriptor %d", descriptor)
	}
	return &OutputStream{h: fd.Adopt(descriptor)}, nil
}

// Write writes all of p at the current position.
func (s *OutputStream) Write(p []byte) (int, error) {
	if s.h.Closed() {
		return 0, errClosed("output stream")
	}
	n, err := s.h.Write(p)
	if err != nil {
		return n, WrapError(ErrIO, err, "error writing bytes to file")
	}
	return n, nil
}

// WriteString writes str at the current position.
func (s *OutputStream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Tell returns the descriptor's current offset. It fails for pipes.
func (s *OutputStream) Tell() (int64, error) {
	if s.h.Closed() {
		return -1, errClosed("output stream")
	}
	pos, err := s.h.Tell()
	if err != nil {
		return -1, WrapError(ErrIO, err, "cannot tell position")
	}
	return pos, nil
}

// Flush is a no-op: writes are unbuffered.
func (s *OutputStream) Flush() error {
	if s.h.Closed() {
		return errClosed("output stream")
	}
	return nil
}

// Sync flushes written data to stable storage.
func (s *OutputStream) Sync() error {
	if s.h.Closed() {
		return errClosed("output stream")
	}
	if err := s.h.Sync(); err != nil {
		return WrapError(ErrIO, err, "fsync failed")
	}
	return nil
}

// Close closes the descriptor. Further calls return nil.
func (s *OutputStream) Close() error {
	if err := s.h.Close(); err != nil {
		return WrapError(ErrIO, err, "error closing file")
	}
	return nil
}

func (s *OutputStream) Closed() bool {
	return s.h.Closed()
}

// Fd returns the descriptor, or -1 after Close.
func (s *OutputStream) Fd() int {
	return s.h.Fd()
}

func (s *OutputStream) Mode() FileMode {
	return ModeWrite
}
