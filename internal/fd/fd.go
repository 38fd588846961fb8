//go:build unix

// Package fd is the descriptor layer under gfio: raw open, close, read,
// pread, write, seek, truncate and stat on integer file descriptors, plus
// Handle, an owned descriptor with idempotent close.
package fd

import (
	"errors"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxRW caps a single read or write syscall. Linux silently truncates at
// 0x7ffff000 and darwin rejects counts above INT_MAX.
const maxRW = 1 << 30

// Handle is an exclusively owned descriptor. Close is idempotent and may be
// called from several goroutines; a Handle collected while still open closes
// its descriptor.
type Handle struct {
	fd   atomic.Int64 // -1 once closed
	name string
}

func newHandle(fd int, name string) *Handle {
	h := &Handle{name: name}
	h.fd.Store(int64(fd))
	runtime.SetFinalizer(h, (*Handle).Close)
	return h
}

// Adopt takes ownership of an already open descriptor.
func Adopt(fd int) *Handle {
	return newHandle(fd, "fd:"+strconv.Itoa(fd))
}

// OpenReadable opens path read-only.
func OpenReadable(path string) (*Handle, error) {
	fd, err := open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return newHandle(fd, path), nil
}

// OpenWritable opens path for writing, creating it if needed. With truncate
// the existing content is dropped; with append the descriptor is positioned
// at end of file.
func OpenWritable(path string, writeOnly, truncate, append bool) (*Handle, error) {
	flags := unix.O_CREAT
	if writeOnly {
		flags |= unix.O_WRONLY
	} else {
		flags |= unix.O_RDWR
	}
	if truncate {
		flags |= unix.O_TRUNC
	}
	if append {
		flags |= unix.O_APPEND
	}

	fd, err := open(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	h := newHandle(fd, path)
	if append {
		if _, err := h.Seek(0, io.SeekEnd); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

// OpenReadWrite opens an existing file for reading and writing.
func OpenReadWrite(path string) (*Handle, error) {
	fd, err := open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return newHandle(fd, path), nil
}

func open(path string, flags int, perm uint32) (int, error) {
	for {
		fd, err := unix.Open(path, flags|unix.O_CLOEXEC, perm)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, &os.PathError{Op: "open", Path: path, Err: err}
		}
		return fd, nil
	}
}

// Fd returns the descriptor, or -1 once closed.
func (h *Handle) Fd() int {
	return int(h.fd.Load())
}

// Name returns the path the handle was opened from, or "fd:N" for adopted
// descriptors.
func (h *Handle) Name() string {
	return h.name
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h.fd.Load() < 0
}

// Close closes the descriptor. Only the first call does anything.
func (h *Handle) Close() error {
	fd := h.fd.Swap(-1)
	if fd < 0 {
		return nil
	}
	runtime.SetFinalizer(h, nil)
	return Close(int(fd))
}

// Detach gives up ownership of the descriptor without closing it and
// returns it. The handle behaves as closed afterwards.
func (h *Handle) Detach() int {
	fd := h.fd.Swap(-1)
	runtime.SetFinalizer(h, nil)
	return int(fd)
}

// Read reads into p from the current OS offset until p is full or EOF.
func (h *Handle) Read(p []byte) (int, error) {
	fd := h.Fd()
	total := 0
	for total < len(p) {
		n, err := unix.Read(fd, p[total:min(len(p), total+maxRW)])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, h.wrap("read", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// ReadAt reads into p at offset until p is full or EOF. It never moves the
// OS offset, so concurrent calls need no locking.
func (h *Handle) ReadAt(p []byte, offset int64) (int, error) {
	fd := h.Fd()
	total := 0
	for total < len(p) {
		n, err := unix.Pread(fd, p[total:min(len(p), total+maxRW)], offset+int64(total))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, h.wrap("pread", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// Write writes all of p at the current OS offset.
func (h *Handle) Write(p []byte) (int, error) {
	fd := h.Fd()
	total := 0
	for total < len(p) {
		n, err := unix.Write(fd, p[total:min(len(p), total+maxRW)])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, h.wrap("write", err)
		}
		if n == 0 {
			return total, h.wrap("write", io.ErrShortWrite)
		}
		total += n
	}
	return total, nil
}

// Seek sets the OS offset.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	off, err := unix.Seek(h.Fd(), offset, whence)
	if err != nil {
		return -1, h.wrap("seek", err)
	}
	return off, nil
}

// Tell returns the OS offset. It fails on pipes and sockets.
func (h *Handle) Tell() (int64, error) {
	return h.Seek(0, io.SeekCurrent)
}

// Size returns the file size reported by fstat.
func (h *Handle) Size() (int64, error) {
	return Size(h.Fd())
}

// Truncate sets the file size.
func (h *Handle) Truncate(size int64) error {
	for {
		err := unix.Ftruncate(h.Fd(), size)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return h.wrap("ftruncate", err)
		}
		return nil
	}
}

// Sync flushes the file to stable storage.
func (h *Handle) Sync() error {
	if err := unix.Fsync(h.Fd()); err != nil {
		return h.wrap("fsync", err)
	}
	return nil
}

func (h *Handle) wrap(op string, err error) error {
	if h.Closed() {
		err = os.ErrClosed
	}
	return &os.PathError{Op: op, Path: h.name, Err: err}
}

// Close closes a raw descriptor.
func Close(fd int) error {
	err := unix.Close(fd)
	if err != nil && err != unix.EINTR {
		return os.NewSyscallError("close", err)
	}
	return nil
}

// Size returns the size of the file behind fd.
func Size(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return -1, os.NewSyscallError("fstat", err)
	}
	return st.Size, nil
}

// IsClosed reports whether fd is not an open descriptor of this process.
func IsClosed(fd int) bool {
	if fd < 0 {
		return true
	}
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return errors.Is(err, unix.EBADF)
}

// Exists reports whether path names an existing file.
func Exists(path string) (bool, error) {
	var st unix.Stat_t
	err := unix.Stat(path, &st)
	if err == nil {
		return true, nil
	}
	if err == unix.ENOENT {
		return false, nil
	}
	return false, &os.PathError{Op: "stat", Path: path, Err: err}
}

// Pipe is a pair of connected descriptors.
type Pipe struct {
	R int
	W int
}

// CreatePipe creates a pipe. Both ends are close-on-exec.
func CreatePipe() (Pipe, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return Pipe{-1, -1}, os.NewSyscallError("pipe", err)
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	return Pipe{R: p[0], W: p[1]}, nil
}
