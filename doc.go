// Package gfio provides byte-level file access over OS descriptors in three
// flavours:
//
//   - OutputStream: sequential, write-only, truncating or appending
//   - ReadableFile: seekable reads with a sequential cursor and pread-based
//     positional reads that are safe to issue from many goroutines
//   - MemoryMappedFile: reads and writes directly against a mapping of the
//     whole file or of an aligned sub-range, with zero-copy reads and resize
//
// Reads return *Buffer values. Buffers from a ReadableFile are allocated from
// a memory.Allocator; buffers from a MemoryMappedFile alias the mapping and
// pin it until released, even past Close. A MemoryMappedFile refuses to
// Resize while any such buffer is outstanding.
//
// Every Buffer must be released explicitly. Garbage collection never releases
// one, since the bytes it hands out may live outside the Go heap and outlast
// the *Buffer itself.
//
// Basic usage:
//
//	f, err := gfio.CreateMemoryMappedFile("/path/to/data", 4096)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	if _, err := f.Write([]byte("hello")); err != nil {
//	    log.Fatal(err)
//	}
//
//	buf, err := f.ReadAt(0, 5)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(buf.String())
//	buf.Release()
//
//	// Resize needs every zero-copy buffer released first.
//	if err := f.Resize(8192); err != nil {
//	    log.Fatal(err)
//	}
package gfio
