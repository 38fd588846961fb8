package gfio

import "fmt"

// FileMode is the access mode a file was opened with.
type FileMode int

const (
	ModeRead FileMode = iota
	ModeWrite
	ModeReadWrite
)

func (m FileMode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "readwrite"
	}
	return fmt.Sprintf("FileMode(%d)", int(m))
}

// ReadRange is a byte range of a file.
type ReadRange struct {
	Offset int64
	Length int64
}

// FileInterface is what every gfio file offers.
type FileInterface interface {
	// Close releases the descriptor. It is idempotent.
	Close() error
	Closed() bool
	// Tell returns the current sequential position.
	Tell() (int64, error)
	Mode() FileMode
}

// Seekable files can move their sequential position.
type Seekable interface {
	Seek(offset int64) error
}

// InputStream reads sequentially.
type InputStream interface {
	FileInterface

	// Read returns up to n bytes from the current position and advances it.
	// Fewer than n bytes are returned at end of file.
	Read(n int64) (*Buffer, error)
	// ReadInto reads into p from the current position and advances it.
	ReadInto(p []byte) (int64, error)
	// Peek returns up to n bytes from the current position without
	// advancing it.
	Peek(n int64) (*Buffer, error)
	// SupportsZeroCopy reports whether returned buffers alias the
	// underlying storage instead of being copied.
	SupportsZeroCopy() bool
}

// RandomAccessFile adds positional reads to InputStream.
type RandomAccessFile interface {
	InputStream
	Seekable

	Size() (int64, error)
	// ReadAt returns up to n bytes at offset. It does not move the
	// sequential position and is safe for concurrent use.
	ReadAt(offset, n int64) (*Buffer, error)
	// ReadAtInto reads up to len(p) bytes at offset into p.
	ReadAtInto(offset int64, p []byte) (int64, error)
	// WillNeed hints that the ranges will be read soon.
	WillNeed(ranges []ReadRange) error
}

// OutputStreamer writes sequentially.
type OutputStreamer interface {
	FileInterface

	Write(p []byte) (int, error)
	Flush() error
}

// WritableFile adds positional writes to OutputStreamer.
type WritableFile interface {
	OutputStreamer
	Seekable

	WriteAt(p []byte, offset int64) (int, error)
}

// ReadWriteFile is both readable and writable at arbitrary positions.
type ReadWriteFile interface {
	RandomAccessFile
	WritableFile
}

var (
	_ RandomAccessFile = (*ReadableFile)(nil)
	_ OutputStreamer   = (*OutputStream)(nil)
	_ ReadWriteFile    = (*MemoryMappedFile)(nil)
)
