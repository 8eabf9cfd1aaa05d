// Package field owns the 2D simulation grids: single fields, read/write
// double buffers, and the Store that allocates them at simulation
// resolution through a backend allocator.
package field

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAllocation matches every *AllocationError.
	ErrAllocation = errors.New("field allocation failed")

	// ErrDisposed is returned when a disposed Store is used again.
	ErrDisposed = errors.New("field store disposed")
)

// Texture is backend-owned storage behind a Field.
type Texture interface {
	Release()
}

// Allocator is implemented by executors that can host field storage.
type Allocator interface {
	// SupportsFormat reports whether f can be used as a render/compute target.
	SupportsFormat(f Format) bool
	// Allocate returns zero-initialised storage for a width x height grid.
	Allocate(width, height int, f Format) (Texture, error)
}

// Field is a width x height grid of 1, 2 or 4 float components.
type Field struct {
	Name       string
	Width      int
	Height     int
	Components int
	Format     Format
	Texture    Texture

	released bool
}

// Valid reports whether the field still refers to live backend storage.
// Handles become invalid once their Store releases them on resize or dispose.
func (f *Field) Valid() bool {
	return f != nil && !f.released && f.Texture != nil
}

// SameShape reports whether two fields share identical dimensions.
func (f *Field) SameShape(o *Field) bool {
	return f.Width == o.Width && f.Height == o.Height
}

func (f *Field) String() string {
	return fmt.Sprintf("%s[%dx%d %s]", f.Name, f.Width, f.Height, f.Format)
}

func (f *Field) release() {
	if f.released {
		return
	}
	f.released = true
	if f.Texture != nil {
		f.Texture.Release()
	}
}

// AllocationError reports a field for which no format in the fallback chain
// could be allocated.
type AllocationError struct {
	Field      string
	Components int
	Tried      []Format
	Err        error
}

func (e *AllocationError) Error() string {
	tried := make([]string, len(e.Tried))
	for i, f := range e.Tried {
		tried[i] = f.String()
	}
	msg := fmt.Sprintf("allocating %s (%d components): no usable format in [%s]",
		e.Field, e.Components, strings.Join(tried, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AllocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAllocation}
	}
	return []error{ErrAllocation, e.Err}
}

// allocate walks the fallback chain for the requested component count and
// returns the first field the allocator accepts.
func allocate(a Allocator, name string, width, height, components int) (*Field, error) {
	chain := FallbackChain(components)
	var lastErr error
	tried := make([]Format, 0, len(chain))
	for _, format := range chain {
		if !a.SupportsFormat(format) {
			continue
		}
		tried = append(tried, format)
		tex, err := a.Allocate(width, height, format)
		if err != nil {
			lastErr = err
			logger().Warn("field format rejected", "field", name, "format", format, "err", err)
			continue
		}
		logger().Debug("field allocated", "field", name, "format", format, "width", width, "height", height)
		return &Field{
			Name:       name,
			Width:      width,
			Height:     height,
			Components: components,
			Format:     format,
			Texture:    tex,
		}, nil
	}
	if len(tried) == 0 {
		tried = chain
	}
	return nil, &AllocationError{Field: name, Components: components, Tried: tried, Err: lastErr}
}
