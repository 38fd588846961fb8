package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/Giulio2002/gfio"
	"github.com/Giulio2002/gfio/internal/fd"
	"github.com/Giulio2002/gfio/memory"
	"github.com/Giulio2002/gfio/mmap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v      *viper.Viper
	alloc  memory.Allocator
	mapped *memory.MappedAllocator // closed on exit when set
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("gfio")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "gfio",
		Short: "Inspect and edit files through descriptor and memory-mapped I/O",
		Long: `gfio reads, appends to and resizes local files using positional
descriptor reads or memory mappings.`,
		Version:           fmt.Sprintf("%s (%s, commit %s, built %s)", version, gfio.Version(), commit, date),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			defer a.teardown()
			if !a.v.GetBool("stats") {
				return nil
			}
			return a.printStats(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().Bool("stats", false, "print allocator metrics to stderr on exit")
	root.PersistentFlags().String("max-memory", "", "fail reads that would hold more than SIZE bytes of buffers")
	root.PersistentFlags().String("allocator", "go", "where read buffers live: go (heap) or mmap (scratch mappings)")
	a.v.BindPFlag("stats", root.PersistentFlags().Lookup("stats"))
	a.v.BindPFlag("max-memory", root.PersistentFlags().Lookup("max-memory"))
	a.v.BindPFlag("allocator", root.PersistentFlags().Lookup("allocator"))

	root.AddCommand(a.catCmd(), a.appendCmd(), a.resizeCmd(), a.statCmd())
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	switch backend := a.v.GetString("allocator"); backend {
	case "go":
		a.alloc = memory.NewGoAllocator()
	case "mmap":
		mapped, err := memory.NewMappedAllocator("", 0, 64, memory.NewGoAllocator())
		if err != nil {
			return fmt.Errorf("cannot create mmap allocator: %w", err)
		}
		a.mapped = mapped
		a.alloc = mapped
	default:
		return fmt.Errorf("invalid allocator: %s (use 'go' or 'mmap')", backend)
	}

	limit, err := parseSize(a.v.GetString("max-memory"))
	if err != nil {
		return fmt.Errorf("invalid max-memory value: %w", err)
	}
	if limit > 0 {
		a.alloc = memory.NewCappedAllocator(a.alloc, limit)
	}
	return nil
}

func (a *app) teardown() {
	if a.mapped != nil {
		a.mapped.Close()
		a.mapped = nil
	}
}

func (a *app) printStats(w io.Writer) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(memory.NewCollector(a.alloc, "gfio")); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			value := m.GetGauge().GetValue()
			if m.GetCounter() != nil {
				value = m.GetCounter().GetValue()
			}
			fmt.Fprintf(w, "%s %v\n", mf.GetName(), value)
		}
	}
	return nil
}

func (a *app) catCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat FILE",
		Short: "Write a byte range of a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runCat,
	}
	cmd.Flags().StringP("offset", "o", "0", "start reading at byte OFFSET")
	cmd.Flags().StringP("length", "n", "", "read at most LENGTH bytes (default: to end of file)")
	cmd.Flags().String("chunk", "64K", "read in chunks of SIZE bytes")
	cmd.Flags().Bool("mmap", false, "read through a memory mapping instead of pread")
	a.v.BindPFlag("offset", cmd.Flags().Lookup("offset"))
	a.v.BindPFlag("length", cmd.Flags().Lookup("length"))
	a.v.BindPFlag("chunk", cmd.Flags().Lookup("chunk"))
	a.v.BindPFlag("mmap", cmd.Flags().Lookup("mmap"))
	return cmd
}

func (a *app) runCat(cmd *cobra.Command, args []string) error {
	offset, err := parseSize(a.v.GetString("offset"))
	if err != nil {
		return fmt.Errorf("invalid offset value: %w", err)
	}
	length, err := parseSize(a.v.GetString("length"))
	if err != nil {
		return fmt.Errorf("invalid length value: %w", err)
	}
	chunk, err := parseSize(a.v.GetString("chunk"))
	if err != nil || chunk <= 0 {
		return fmt.Errorf("invalid chunk value: %q", a.v.GetString("chunk"))
	}

	f, err := a.openRandomAccess(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return err
	}
	end := size
	if a.v.GetString("length") != "" && offset+length < size {
		end = offset + length
	}
	if err := f.WillNeed([]gfio.ReadRange{{Offset: offset, Length: max(end-offset, 0)}}); err != nil {
		return err
	}
	return copyRange(cmd.OutOrStdout(), f, offset, end, chunk)
}

func (a *app) openRandomAccess(path string) (gfio.RandomAccessFile, error) {
	if a.v.GetBool("mmap") {
		return gfio.OpenMemoryMappedFile(path, gfio.ModeRead)
	}
	return gfio.OpenReadableFile(path, gfio.WithAllocator(a.alloc))
}

// copyRange writes bytes [offset, end) of f to w, one ReadAt per chunk.
func copyRange(w io.Writer, f gfio.RandomAccessFile, offset, end, chunk int64) error {
	for offset < end {
		buf, err := f.ReadAt(offset, min(chunk, end-offset))
		if err != nil {
			return err
		}
		n := buf.Len()
		_, err = w.Write(buf.Bytes())
		buf.Release()
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		offset += int64(n)
	}
	return nil
}

func (a *app) appendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append FILE",
		Short: "Append stdin to a file, creating it if needed",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runAppend,
	}
	cmd.Flags().Bool("truncate", false, "truncate the file before writing")
	cmd.Flags().Bool("sync", false, "fsync the file before exiting")
	a.v.BindPFlag("truncate", cmd.Flags().Lookup("truncate"))
	a.v.BindPFlag("sync", cmd.Flags().Lookup("sync"))
	return cmd
}

func (a *app) runAppend(cmd *cobra.Command, args []string) error {
	out, err := gfio.OpenOutputStream(args[0], !a.v.GetBool("truncate"))
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, cmd.InOrStdin()); err != nil {
		return err
	}
	if a.v.GetBool("sync") {
		if err := out.Sync(); err != nil {
			return err
		}
	}
	pos, err := out.Tell()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d bytes\n", args[0], pos)
	return out.Close()
}

func (a *app) resizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resize FILE SIZE",
		Short: "Resize a file through a read-write memory mapping",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runResize,
	}
	cmd.Flags().Bool("create", false, "create FILE if it does not exist")
	a.v.BindPFlag("create", cmd.Flags().Lookup("create"))
	return cmd
}

func (a *app) runResize(cmd *cobra.Command, args []string) error {
	size, err := parseSize(args[1])
	if err != nil {
		return fmt.Errorf("invalid size: %w", err)
	}

	exists, err := fd.Exists(args[0])
	if err != nil {
		return err
	}
	var f *gfio.MemoryMappedFile
	if !exists && a.v.GetBool("create") {
		f, err = gfio.CreateMemoryMappedFile(args[0], 0)
	} else {
		f, err = gfio.OpenMemoryMappedFile(args[0], gfio.ModeReadWrite)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Resize(size); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return f.Close()
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat FILE",
		Short: "Print a file's size and how it maps",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runStat,
	}
}

func (a *app) runStat(cmd *cobra.Command, args []string) error {
	f, err := gfio.OpenMemoryMappedFile(args[0], gfio.ModeRead)
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return err
	}
	page := mmap.Granularity()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "size: %d\n", size)
	fmt.Fprintf(out, "granularity: %d\n", page)
	fmt.Fprintf(out, "pages: %d\n", (size+page-1)/page)
	return nil
}

// parseSize parses a byte count with an optional suffix.
// Supports suffixes: b (512), K (1024), KB (1000), M, MB, G, GB, etc.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	multiplier := int64(1)
	upper := strings.ToUpper(s)

	// Check for suffixes (longest first)
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"TB", 1000 * 1000 * 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"MB", 1000 * 1000},
		{"KB", 1000},
		{"T", 1024 * 1024 * 1024 * 1024},
		{"G", 1024 * 1024 * 1024},
		{"M", 1024 * 1024},
		{"K", 1024},
		{"B", 512}, // block
	}

	for _, suf := range suffixes {
		if strings.HasSuffix(upper, suf.suffix) {
			multiplier = suf.mult
			s = s[:len(s)-len(suf.suffix)]
			break
		}
	}

	// Decimal digits only: cast reads a leading 0 as octal and 0x as hex.
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("invalid number: %s", s)
	}
	digits := strings.TrimLeft(s, "0")
	if digits == "" {
		digits = "0"
	}
	n, err := cast.ToInt64E(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", s)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("size overflows int64: %s", s)
	}
	return n * multiplier, nil
}
