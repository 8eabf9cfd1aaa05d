//go:build !opencl

package opencl

import (
	"github.com/Distortions81/stable-fluids/internal/field"
	"github.com/Distortions81/stable-fluids/internal/kernel"
)

// Available reports whether this build includes the OpenCL executor.
const Available = false

// Executor is a placeholder in builds without the opencl tag.
type Executor struct{}

func New() (*Executor, error) { return nil, ErrUnavailable }

func (e *Executor) Name() string { return "opencl" }

func (e *Executor) DeviceName() string { return "" }

func (e *Executor) SupportsFormat(field.Format) bool { return false }

func (e *Executor) Allocate(int, int, field.Format) (field.Texture, error) {
	return nil, ErrUnavailable
}

func (e *Executor) Execute(kernel.Pass) error { return ErrUnavailable }

func (e *Executor) Read(*field.Field) ([]float32, error) { return nil, ErrUnavailable }

func (e *Executor) Write(*field.Field, []float32) error { return ErrUnavailable }

func (e *Executor) Close() {}

var _ kernel.Executor = (*Executor)(nil)
