package gfio

import "io"

type readerAt struct {
	f RandomAccessFile
}

// NewReaderAt adapts f to io.ReaderAt. Unlike ReadAtInto, short reads at end
// of file report io.EOF, as io.ReaderAt requires.
func NewReaderAt(f RandomAccessFile) io.ReaderAt {
	return readerAt{f: f}
}

func (r readerAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.f.ReadAtInto(off, p)
	if err != nil {
		return int(n), err
	}
	if int(n) < len(p) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// NewSectionReader returns an io.SectionReader over n bytes of f starting at
// off. It reads with ReadAtInto, so it is safe to use alongside other
// readers of f.
func NewSectionReader(f RandomAccessFile, off, n int64) *io.SectionReader {
	return io.NewSectionReader(NewReaderAt(f), off, n)
}
