// Package cpu is the reference executor: every kernel runs in Go over
// host-memory textures, split into row bands across worker goroutines.
// It is deterministic and is what the simulation tests run against.
package cpu

import (
	"fmt"
	"math"
	"runtime"

	"github.com/Distortions81/stable-fluids/internal/field"
	"github.com/Distortions81/stable-fluids/internal/kernel"
)

// Options configure an Executor.
type Options struct {
	// Workers is the number of row-band goroutines; 0 selects NumCPU.
	Workers int
	// Formats restricts the formats reported as supported. Empty means all.
	Formats []field.Format
}

// Executor runs kernels on the CPU.
type Executor struct {
	pool      *rowPool
	supported map[field.Format]bool
}

// New returns a CPU executor.
func New(opts Options) *Executor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	e := &Executor{pool: newRowPool(workers)}
	if len(opts.Formats) > 0 {
		e.supported = make(map[field.Format]bool, len(opts.Formats))
		for _, f := range opts.Formats {
			e.supported[f] = true
		}
	}
	return e
}

func (e *Executor) Name() string { return "cpu" }

// Close stops the worker goroutines.
func (e *Executor) Close() { e.pool.close() }

func (e *Executor) SupportsFormat(f field.Format) bool {
	if f.Channels() == 0 {
		return false
	}
	if e.supported == nil {
		return true
	}
	return e.supported[f]
}

func (e *Executor) Allocate(width, height int, f field.Format) (field.Texture, error) {
	if !e.SupportsFormat(f) {
		return nil, fmt.Errorf("format %v not supported", f)
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	return newTexture(width, height, f), nil
}

// Execute runs one pass. The pass must already be validated; kernel.Run
// does both.
func (e *Executor) Execute(p kernel.Pass) error {
	switch p := p.(type) {
	case kernel.SplatParams:
		return e.splat(p)
	case kernel.AdvectParams:
		return e.advect(p)
	case kernel.CurlParams:
		return e.curl(p)
	case kernel.VorticityParams:
		return e.vorticity(p)
	case kernel.DivergenceParams:
		return e.divergence(p)
	case kernel.PressureClearParams:
		return e.pressureClear(p)
	case kernel.PressureSolveParams:
		return e.pressureSolve(p)
	case kernel.GradientParams:
		return e.gradient(p)
	case kernel.DisplayParams:
		return e.display(p)
	}
	return fmt.Errorf("unsupported pass %T", p)
}

// Read returns the logical components of f, packed row-major from the
// bottom row up.
func (e *Executor) Read(f *field.Field) ([]float32, error) {
	t, err := textureOf(f)
	if err != nil {
		return nil, err
	}
	out := make([]float32, f.Width*f.Height*f.Components)
	for i := 0; i < f.Width*f.Height; i++ {
		for c := 0; c < f.Components; c++ {
			out[i*f.Components+c] = t.data[i*t.channels+c]
		}
	}
	return out, nil
}

// Write replaces the logical components of f with data laid out as Read
// returns it.
func (e *Executor) Write(f *field.Field, data []float32) error {
	t, err := textureOf(f)
	if err != nil {
		return err
	}
	if len(data) != f.Width*f.Height*f.Components {
		return fmt.Errorf("write %s: got %d values, want %d", f.Name, len(data), f.Width*f.Height*f.Components)
	}
	for i := 0; i < f.Width*f.Height; i++ {
		for c := 0; c < f.Components; c++ {
			v := data[i*f.Components+c]
			if t.half {
				v = field.QuantizeHalf(v)
			}
			t.data[i*t.channels+c] = v
		}
	}
	return nil
}

func textures(fields ...*field.Field) ([]*texture, error) {
	out := make([]*texture, len(fields))
	for i, f := range fields {
		t, err := textureOf(f)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// copyRest carries storage channels beyond the logical component count
// through unchanged so widened formats keep their padding stable.
func copyRest(dst, src *texture, x, y, from int) {
	for c := from; c < dst.channels; c++ {
		dst.set(x, y, c, src.at(x, y, c))
	}
}

func (e *Executor) splat(p kernel.SplatParams) error {
	ts, err := textures(p.Target, p.Output)
	if err != nil {
		return err
	}
	src, dst := ts[0], ts[1]
	n := p.Output.Components
	if n > 3 {
		n = 3
	}
	w, h := dst.width, dst.height
	e.pool.run(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float32(y) + 0.5) / float32(h)
			py := v - p.Point.Y()
			for x := 0; x < w; x++ {
				u := (float32(x) + 0.5) / float32(w)
				px := (u - p.Point.X()) * p.AspectRatio
				s := float32(math.Exp(float64(-(px*px + py*py) / p.Radius)))
				for c := 0; c < n; c++ {
					dst.set(x, y, c, src.at(x, y, c)+p.Value[c]*s)
				}
				copyRest(dst, src, x, y, n)
			}
		}
	})
	return nil
}

func (e *Executor) advect(p kernel.AdvectParams) error {
	ts, err := textures(p.Velocity, p.Source, p.Output)
	if err != nil {
		return err
	}
	vel, src, dst := ts[0], ts[1], ts[2]
	n := p.Output.Components
	w, h := dst.width, dst.height
	tx, ty := p.TexelSize.X(), p.TexelSize.Y()
	e.pool.run(h, func(y0, y1 int) {
		sample := make([]float32, n)
		for y := y0; y < y1; y++ {
			v := (float32(y) + 0.5) / float32(h)
			for x := 0; x < w; x++ {
				u := (float32(x) + 0.5) / float32(w)
				vx, vy := vel.vec2(x, y)
				src.bilinear(u-p.DT*vx*tx, v-p.DT*vy*ty, sample)
				for c := 0; c < n; c++ {
					dst.set(x, y, c, p.Dissipation*sample[c])
				}
				copyRest(dst, src, x, y, n)
			}
		}
	})
	return nil
}

func (e *Executor) curl(p kernel.CurlParams) error {
	ts, err := textures(p.Velocity, p.Output)
	if err != nil {
		return err
	}
	vel, dst := ts[0], ts[1]
	w := dst.width
	e.pool.run(dst.height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				l := vel.at(x-1, y, 1)
				r := vel.at(x+1, y, 1)
				t := vel.at(x, y+1, 0)
				b := vel.at(x, y-1, 0)
				dst.set(x, y, 0, 0.5*(r-l-t+b))
			}
		}
	})
	return nil
}

func (e *Executor) vorticity(p kernel.VorticityParams) error {
	ts, err := textures(p.Velocity, p.Curl, p.Output)
	if err != nil {
		return err
	}
	vel, curl, dst := ts[0], ts[1], ts[2]
	w := dst.width
	e.pool.run(dst.height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				l := curl.at(x-1, y, 0)
				r := curl.at(x+1, y, 0)
				t := curl.at(x, y+1, 0)
				b := curl.at(x, y-1, 0)
				c := curl.at(x, y, 0)
				fx := 0.5 * (abs32(t) - abs32(b))
				fy := 0.5 * (abs32(r) - abs32(l))
				inv := 1 / (float32(math.Hypot(float64(fx), float64(fy))) + 0.0001)
				fx *= inv * p.Strength * c
				fy *= -inv * p.Strength * c
				vx, vy := vel.vec2(x, y)
				dst.set(x, y, 0, vx+fx*p.DT)
				dst.set(x, y, 1, vy+fy*p.DT)
				copyRest(dst, vel, x, y, 2)
			}
		}
	})
	return nil
}

func (e *Executor) divergence(p kernel.DivergenceParams) error {
	ts, err := textures(p.Velocity, p.Output)
	if err != nil {
		return err
	}
	vel, dst := ts[0], ts[1]
	w := dst.width
	e.pool.run(dst.height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				l := vel.at(x-1, y, 0)
				r := vel.at(x+1, y, 0)
				t := vel.at(x, y+1, 1)
				b := vel.at(x, y-1, 1)
				dst.set(x, y, 0, 0.5*(r-l+t-b))
			}
		}
	})
	return nil
}

func (e *Executor) pressureClear(p kernel.PressureClearParams) error {
	ts, err := textures(p.Pressure, p.Output)
	if err != nil {
		return err
	}
	src, dst := ts[0], ts[1]
	w := dst.width
	e.pool.run(dst.height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				dst.set(x, y, 0, p.Decay*src.at(x, y, 0))
			}
		}
	})
	return nil
}

func (e *Executor) pressureSolve(p kernel.PressureSolveParams) error {
	ts, err := textures(p.Pressure, p.Divergence, p.Output)
	if err != nil {
		return err
	}
	pr, div, dst := ts[0], ts[1], ts[2]
	w := dst.width
	e.pool.run(dst.height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				l := pr.at(x-1, y, 0)
				r := pr.at(x+1, y, 0)
				t := pr.at(x, y+1, 0)
				b := pr.at(x, y-1, 0)
				dst.set(x, y, 0, (l+r+b+t-div.at(x, y, 0))*0.25)
			}
		}
	})
	return nil
}

func (e *Executor) gradient(p kernel.GradientParams) error {
	ts, err := textures(p.Pressure, p.Velocity, p.Output)
	if err != nil {
		return err
	}
	pr, vel, dst := ts[0], ts[1], ts[2]
	w := dst.width
	e.pool.run(dst.height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				l := pr.at(x-1, y, 0)
				r := pr.at(x+1, y, 0)
				t := pr.at(x, y+1, 0)
				b := pr.at(x, y-1, 0)
				vx, vy := vel.vec2(x, y)
				dst.set(x, y, 0, vx-(r-l))
				dst.set(x, y, 1, vy-(t-b))
				copyRest(dst, vel, x, y, 2)
			}
		}
	})
	return nil
}

func (e *Executor) display(p kernel.DisplayParams) error {
	src, err := textureOf(p.Density)
	if err != nil {
		return err
	}
	gamma := float64(p.Gamma)
	if gamma <= 0 {
		gamma = DefaultGamma
	}
	img := p.Target
	min := img.Bounds().Min
	w, h := src.width, src.height
	e.pool.run(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			// Texture rows run bottom-up; image rows top-down.
			row := img.Pix[img.PixOffset(min.X, min.Y+h-1-y):]
			for x := 0; x < w; x++ {
				o := x * 4
				for c := 0; c < 3; c++ {
					row[o+c] = toneMap(src.at(x, y, c), gamma)
				}
				row[o+3] = 0xff
			}
		}
	})
	return nil
}

// DefaultGamma is the exponent applied after Reinhard compression.
const DefaultGamma = 0.8

func toneMap(v float32, gamma float64) uint8 {
	if !(v > 0) {
		return 0
	}
	c := float64(v) / (1 + float64(v))
	c = math.Pow(c, gamma)
	return uint8(math.Min(255, math.Round(c*255)))
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

var _ kernel.Executor = (*Executor)(nil)
