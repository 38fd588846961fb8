package gfio

import (
	"go.dw1.io/safemath"

	"github.com/Giulio2002/gfio/memory"
)

type options struct {
	alloc memory.Allocator
}

// Option configures how a file is opened.
type Option func(*options)

// WithAllocator sets the allocator heap buffers are drawn from. The default
// is memory.DefaultAllocator().
func WithAllocator(alloc memory.Allocator) Option {
	return func(o *options) {
		o.alloc = alloc
	}
}

func buildOptions(opts []Option) options {
	o := options{alloc: memory.DefaultAllocator()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.alloc == nil {
		o.alloc = memory.DefaultAllocator()
	}
	return o
}

// toIndex converts a file offset or length into a slice index, failing
// where int is narrower than the value.
func toIndex(v int64) (int, error) {
	i, err := safemath.ConvertAny[int](v)
	if err != nil {
		return 0, WrapError(ErrInvalid, err, "%d does not fit in the address space", v)
	}
	return i, nil
}
