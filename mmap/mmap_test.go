//go:build unix

package mmap

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func scratchFile(t *testing.T, size int64) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestMapOutlivesDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	content := []byte("testdata")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(int(f.Fd()), 0, len(content), false)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if !bytes.Equal(m.Data(), content) || m.Size() != int64(len(content)) {
		t.Fatalf("got %q (%d)", m.Data(), m.Size())
	}
	// Read-only maps have nothing to flush.
	if err := m.Sync(); err != nil {
		t.Fatal(err)
	}
}

func TestSyncWritesThrough(t *testing.T) {
	f := scratchFile(t, 4096)
	m, err := New(int(f.Fd()), 0, 4096, true)
	if err != nil {
		t.Fatal(err)
	}
	copy(m.Data()[10:], "testdata")
	if err := m.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if string(got[10:18]) != "testdata" {
		t.Fatalf("file holds %q", got[:20])
	}
}

func TestRemapGrowShrink(t *testing.T) {
	f := scratchFile(t, 4096)
	m, err := New(int(f.Fd()), 0, 4096, true)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	copy(m.Data(), "head")

	if err := f.Truncate(3 * 4096); err != nil {
		t.Fatal(err)
	}
	if err := m.Remap(3 * 4096); err != nil {
		t.Fatal(err)
	}
	if m.Size() != 3*4096 || string(m.Data()[:4]) != "head" {
		t.Fatalf("after grow: size=%d head=%q", m.Size(), m.Data()[:4])
	}
	copy(m.Data()[2*4096:], "tail")

	if err := m.Remap(10); err != nil {
		t.Fatal(err)
	}
	if len(m.Data()) != 10 || string(m.Data()[:4]) != "head" {
		t.Fatalf("after shrink: %q", m.Data())
	}
	if err := m.Remap(10); err != nil {
		t.Fatal(err)
	}
	if err := m.Remap(0); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("remap to 0: %v", err)
	}
}

func TestOffsets(t *testing.T) {
	g := Granularity()
	f := scratchFile(t, 2*g)

	if _, err := New(int(f.Fd()), 1, int(g), false); !errors.Is(err, ErrUnaligned) {
		t.Fatalf("unaligned offset: %v", err)
	}
	if _, err := New(int(f.Fd()), -g, int(g), false); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("negative offset: %v", err)
	}
	if !Aligned(0) || !Aligned(2*g) || Aligned(g/2) {
		t.Fatal("Aligned disagrees with Granularity")
	}

	m, err := New(int(f.Fd()), g, int(g), false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if err := m.Remap(2 * g); !errors.Is(err, ErrPartialRemap) {
		t.Fatalf("remap of a partial map: %v", err)
	}
}

func TestInvalidLength(t *testing.T) {
	f := scratchFile(t, 0)
	for _, n := range []int{0, -1} {
		if _, err := New(int(f.Fd()), 0, n, false); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("length %d: %v", n, err)
		}
	}
}

func TestClosedMap(t *testing.T) {
	f := scratchFile(t, 64)
	m, err := New(int(f.Fd()), 0, 64, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if m.Data() != nil || m.Size() != 0 {
		t.Fatal("closed map still exposes data")
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(m.Remap(128), ErrNotMapped) || !errors.Is(m.Sync(), ErrNotMapped) {
		t.Fatal("closed map accepted remap or sync")
	}
	if !errors.Is(m.AdviseWillNeed(0, 1), ErrNotMapped) {
		t.Fatal("closed map accepted advice")
	}
}

func TestAdviseWillNeed(t *testing.T) {
	g := Granularity()
	f := scratchFile(t, 3*g)
	m, err := New(int(f.Fd()), 0, int(3*g), false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	for _, tc := range []struct{ off, n int64 }{
		{g + 10, 100},
		{0, 10 * g}, // clamped to the map
		{3 * g, 5},  // empty after clamping
		{0, 0},
	} {
		if err := m.AdviseWillNeed(tc.off, tc.n); err != nil {
			t.Errorf("AdviseWillNeed(%d, %d): %v", tc.off, tc.n, err)
		}
	}
	if err := m.AdviseWillNeed(-1, 10); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("negative offset: %v", err)
	}
	if err := m.AdviseWillNeed(3*g+1, 1); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("offset past the end: %v", err)
	}
}
