// Package kernel defines the nine simulation kernels as typed parameter
// sets and the Executor contract that runs them. Stencil bodies live in the
// executors under internal/backend.
package kernel

import (
	"errors"
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Distortions81/stable-fluids/internal/field"
)

// ID names a kernel.
type ID uint8

const (
	Splat ID = iota + 1
	Advection
	CurlKernel
	Vorticity
	DivergenceKernel
	PressureClear
	PressureSolve
	GradientSubtract
	Display
)

var idNames = map[ID]string{
	Splat:            "splat",
	Advection:        "advection",
	CurlKernel:       "curl",
	Vorticity:        "vorticity",
	DivergenceKernel: "divergence",
	PressureClear:    "pressure-clear",
	PressureSolve:    "pressure-solve",
	GradientSubtract: "gradient-subtract",
	Display:          "display",
}

func (id ID) String() string {
	if n, ok := idNames[id]; ok {
		return n
	}
	return fmt.Sprintf("kernel(%d)", uint8(id))
}

// All lists every kernel in pipeline order.
func All() []ID {
	return []ID{Splat, Advection, CurlKernel, Vorticity, DivergenceKernel,
		PressureClear, PressureSolve, GradientSubtract, Display}
}

// ErrExecution matches every *ExecutionError.
var ErrExecution = errors.New("kernel execution failed")

// ExecutionError reports a pass that the executor could not run. The pass
// produced no usable output and its buffer swap must not happen.
type ExecutionError struct {
	Kernel ID
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s kernel: %v", e.Kernel, e.Err)
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }

// Failed wraps err as an ExecutionError for kernel id. A nil err stays nil.
func Failed(id ID, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{Kernel: id, Err: err}
}

// Pass is one kernel invocation with all of its inputs bound.
type Pass interface {
	Kernel() ID
	Validate() error
}

// Executor runs passes. Execution is synchronous from the caller's point of
// view: results of a pass are visible to every later pass.
type Executor interface {
	field.Allocator
	Name() string
	Execute(p Pass) error
}

// Run validates p and hands it to e, wrapping any failure.
func Run(e Executor, p Pass) error {
	if err := p.Validate(); err != nil {
		return Failed(p.Kernel(), err)
	}
	return Failed(p.Kernel(), e.Execute(p))
}

// SplatParams adds Value * exp(-|p|²/Radius) around Point to Target.
type SplatParams struct {
	Target      *field.Field
	Output      *field.Field
	Point       mgl32.Vec2
	Value       mgl32.Vec3
	Radius      float32
	AspectRatio float32
	TexelSize   mgl32.Vec2
}

func (SplatParams) Kernel() ID { return Splat }

func (p SplatParams) Validate() error {
	if p.Radius <= 0 {
		return fmt.Errorf("radius %v must be positive", p.Radius)
	}
	return checkIO(p.Output, p.Target)
}

// AdvectParams transports Source along Velocity for DT seconds.
type AdvectParams struct {
	Velocity    *field.Field
	Source      *field.Field
	Output      *field.Field
	DT          float32
	Dissipation float32
	TexelSize   mgl32.Vec2
}

func (AdvectParams) Kernel() ID { return Advection }

func (p AdvectParams) Validate() error {
	if p.Dissipation <= 0 || p.Dissipation > 1 {
		return fmt.Errorf("dissipation %v outside (0,1]", p.Dissipation)
	}
	if err := checkIO(p.Output, p.Source, p.Velocity); err != nil {
		return err
	}
	return minComponents(p.Velocity, 2)
}

// CurlParams estimates vorticity of Velocity into the scalar Output.
type CurlParams struct {
	Velocity  *field.Field
	Output    *field.Field
	TexelSize mgl32.Vec2
}

func (CurlParams) Kernel() ID { return CurlKernel }

func (p CurlParams) Validate() error {
	if err := checkIO(p.Output, p.Velocity); err != nil {
		return err
	}
	return minComponents(p.Velocity, 2)
}

// VorticityParams adds the confinement force along the curl gradient.
type VorticityParams struct {
	Velocity  *field.Field
	Curl      *field.Field
	Output    *field.Field
	Strength  float32
	DT        float32
	TexelSize mgl32.Vec2
}

func (VorticityParams) Kernel() ID { return Vorticity }

func (p VorticityParams) Validate() error {
	if err := checkIO(p.Output, p.Velocity, p.Curl); err != nil {
		return err
	}
	return minComponents(p.Velocity, 2)
}

// DivergenceParams estimates the divergence of Velocity.
type DivergenceParams struct {
	Velocity  *field.Field
	Output    *field.Field
	TexelSize mgl32.Vec2
}

func (DivergenceParams) Kernel() ID { return DivergenceKernel }

func (p DivergenceParams) Validate() error {
	if err := checkIO(p.Output, p.Velocity); err != nil {
		return err
	}
	return minComponents(p.Velocity, 2)
}

// PressureClearParams scales the previous pressure by Decay as a warm start.
type PressureClearParams struct {
	Pressure  *field.Field
	Output    *field.Field
	Decay     float32
	TexelSize mgl32.Vec2
}

func (PressureClearParams) Kernel() ID { return PressureClear }

func (p PressureClearParams) Validate() error {
	if p.Decay < 0 || p.Decay > 1 {
		return fmt.Errorf("decay %v outside [0,1]", p.Decay)
	}
	return checkIO(p.Output, p.Pressure)
}

// PressureSolveParams is one Jacobi relaxation step of ∇²p = ∇·v.
type PressureSolveParams struct {
	Pressure   *field.Field
	Divergence *field.Field
	Output     *field.Field
	TexelSize  mgl32.Vec2
}

func (PressureSolveParams) Kernel() ID { return PressureSolve }

func (p PressureSolveParams) Validate() error {
	return checkIO(p.Output, p.Pressure, p.Divergence)
}

// GradientParams subtracts ∇Pressure from Velocity.
type GradientParams struct {
	Pressure  *field.Field
	Velocity  *field.Field
	Output    *field.Field
	TexelSize mgl32.Vec2
}

func (GradientParams) Kernel() ID { return GradientSubtract }

func (p GradientParams) Validate() error {
	if err := checkIO(p.Output, p.Velocity, p.Pressure); err != nil {
		return err
	}
	return minComponents(p.Velocity, 2)
}

// DisplayParams tone-maps Density into an 8-bit image of the same size.
type DisplayParams struct {
	Density *field.Field
	Target  *image.RGBA
	Gamma   float32
}

func (DisplayParams) Kernel() ID { return Display }

func (p DisplayParams) Validate() error {
	if !p.Density.Valid() {
		return fmt.Errorf("density input: %w", errInvalidField)
	}
	if p.Target == nil {
		return errors.New("nil presentation target")
	}
	b := p.Target.Bounds()
	if b.Dx() != p.Density.Width || b.Dy() != p.Density.Height {
		return fmt.Errorf("target %dx%d does not match density %dx%d",
			b.Dx(), b.Dy(), p.Density.Width, p.Density.Height)
	}
	return nil
}

var errInvalidField = errors.New("field handle is nil or released")

func checkIO(out *field.Field, inputs ...*field.Field) error {
	if !out.Valid() {
		return fmt.Errorf("output: %w", errInvalidField)
	}
	for _, in := range inputs {
		if !in.Valid() {
			name := "input"
			if in != nil {
				name = in.Name
			}
			return fmt.Errorf("%s: %w", name, errInvalidField)
		}
		if !in.SameShape(out) {
			return fmt.Errorf("%s is %dx%d, output %s is %dx%d",
				in.Name, in.Width, in.Height, out.Name, out.Width, out.Height)
		}
		if in == out {
			return fmt.Errorf("%s is bound as both input and output", in.Name)
		}
	}
	return nil
}

func minComponents(f *field.Field, n int) error {
	if f.Components < n {
		return fmt.Errorf("%s has %d components, need %d", f.Name, f.Components, n)
	}
	return nil
}
