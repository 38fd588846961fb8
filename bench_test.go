package gfio

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func setupBenchFile(b *testing.B, size int) string {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.dat")
	if err := os.WriteFile(path, randomBytes(size, 42), 0644); err != nil {
		b.Fatal(err)
	}
	return path
}

// BenchmarkReadAt compares positional reads through pread and through a
// memory mapping.
func BenchmarkReadAt(b *testing.B) {
	for _, n := range []int{64, 4096, 1 << 16} {
		b.Run(fmt.Sprintf("ReadableFile/%d", n), func(b *testing.B) {
			f, err := OpenReadableFile(setupBenchFile(b, 1<<24))
			if err != nil {
				b.Fatal(err)
			}
			defer f.Close()
			benchReadAt(b, f, n, 1<<24)
		})
		b.Run(fmt.Sprintf("MemoryMappedFile/%d", n), func(b *testing.B) {
			f, err := OpenMemoryMappedFile(setupBenchFile(b, 1<<24), ModeRead)
			if err != nil {
				b.Fatal(err)
			}
			defer f.Close()
			benchReadAt(b, f, n, 1<<24)
		})
	}
}

func benchReadAt(b *testing.B, f RandomAccessFile, n, size int) {
	rng := rand.New(rand.NewSource(1))
	b.SetBytes(int64(n))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		off := int64(rng.Intn(size - n))
		buf, err := f.ReadAt(off, int64(n))
		if err != nil {
			b.Fatal(err)
		}
		buf.Release()
	}
}

func BenchmarkReadAtParallel(b *testing.B) {
	const size = 1 << 24
	path := setupBenchFile(b, size)

	b.Run("ReadableFile", func(b *testing.B) {
		f, err := OpenReadableFile(path)
		if err != nil {
			b.Fatal(err)
		}
		defer f.Close()
		benchReadAtParallel(b, f, size)
	})
	b.Run("MemoryMappedFile", func(b *testing.B) {
		f, err := OpenMemoryMappedFile(path, ModeRead)
		if err != nil {
			b.Fatal(err)
		}
		defer f.Close()
		benchReadAtParallel(b, f, size)
	})
}

func benchReadAtParallel(b *testing.B, f RandomAccessFile, size int) {
	b.SetBytes(4096)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		p := make([]byte, 4096)
		var off int64
		for pb.Next() {
			if _, err := f.ReadAtInto(off, p); err != nil {
				b.Error(err)
				return
			}
			off = (off + 4096) % int64(size)
		}
	})
}

func BenchmarkMemoryMappedWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.dat")
	f, err := CreateMemoryMappedFile(path, 1<<24)
	if err != nil {
		b.Fatal(err)
	}
	defer f.Close()

	p := randomBytes(4096, 7)
	b.SetBytes(int64(len(p)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		off := int64(i%(1<<12)) * 4096
		if _, err := f.WriteAt(p, off); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkOutputStreamWrite(b *testing.B) {
	s, err := OpenOutputStream(filepath.Join(b.TempDir(), "bench.dat"), false)
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	p := randomBytes(4096, 8)
	b.SetBytes(int64(len(p)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Write(p); err != nil {
			b.Fatal(err)
		}
	}
}
