// Package sim sequences kernel passes into simulation ticks and owns the
// session state a host drives frame by frame.
package sim

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/field"
	"github.com/Distortions81/stable-fluids/internal/kernel"
)

var (
	// ErrResizeRace means the field set was reallocated while a tick held
	// references into it.
	ErrResizeRace = errors.New("sim: fields reallocated during tick")
	// ErrStopped is returned by every operation after the session closes.
	ErrStopped = errors.New("sim: session stopped")
	// ErrNotReady means the store has no usable fields, usually after a
	// failed resize.
	ErrNotReady = errors.New("sim: fields not allocated")
)

// MinDelta replaces non-positive frame times so a tick is never skipped.
const MinDelta = 1e-6

// Splat is one impulse in texture space: Force is added to velocity and
// Color to dye, both with a Gaussian falloff around Point.
type Splat struct {
	Point mgl32.Vec2
	Force mgl32.Vec2
	Color mgl32.Vec3
}

// StepStats describes one completed tick.
type StepStats struct {
	Passes int
	Swaps  int
	Splats int
	DT     float32
}

// EffectiveDT converts a frame delta to the seconds simulated by one tick.
func EffectiveDT(dt, maxDelta time.Duration) float32 {
	if maxDelta > 0 && dt > maxDelta {
		dt = maxDelta
	}
	s := float32(dt.Seconds())
	if s <= 0 {
		return MinDelta
	}
	return s
}

// Scheduler runs the fixed pass order of one tick against a store.
type Scheduler struct {
	exec  kernel.Executor
	store *field.Store

	stats StepStats
}

// NewScheduler binds exec and store. The scheduler holds no field
// references between ticks.
func NewScheduler(exec kernel.Executor, store *field.Store) *Scheduler {
	return &Scheduler{exec: exec, store: store}
}

func (s *Scheduler) run(p kernel.Pass) error {
	if err := kernel.Run(s.exec, p); err != nil {
		return err
	}
	s.stats.Passes++
	return nil
}

func (s *Scheduler) swap(d *field.DoubleBuffer) {
	d.Swap()
	s.stats.Swaps++
}

// Step advances the simulation by dt. Splats are applied before advection
// in the order given. The first failing pass ends the tick: its buffer is
// not swapped and the error is returned as a *kernel.ExecutionError.
func (s *Scheduler) Step(dt time.Duration, cfg config.Config, splats []Splat) (StepStats, error) {
	s.stats = StepStats{DT: EffectiveDT(dt, cfg.MaxDelta.Std())}
	if !s.store.Ready() {
		return s.stats, ErrNotReady
	}
	gen := s.store.Generation()
	err := s.step(cfg, splats)
	if err == nil && s.store.Generation() != gen {
		err = ErrResizeRace
	}
	return s.stats, err
}

func (s *Scheduler) step(cfg config.Config, splats []Splat) error {
	st := s.store
	dt := s.stats.DT
	texel := st.TexelSize()
	velocity, density, pressure := st.Velocity(), st.Density(), st.Pressure()

	for _, sp := range splats {
		if err := s.run(kernel.SplatParams{
			Target:      velocity.Read(),
			Output:      velocity.Write(),
			Point:       sp.Point,
			Value:       mgl32.Vec3{sp.Force.X(), sp.Force.Y(), 1},
			Radius:      float32(cfg.SplatRadius),
			AspectRatio: st.AspectRatio(),
			TexelSize:   texel,
		}); err != nil {
			return err
		}
		s.swap(velocity)
		if err := s.run(kernel.SplatParams{
			Target:      density.Read(),
			Output:      density.Write(),
			Point:       sp.Point,
			Value:       sp.Color,
			Radius:      float32(cfg.SplatRadius),
			AspectRatio: st.AspectRatio(),
			TexelSize:   texel,
		}); err != nil {
			return err
		}
		s.swap(density)
		s.stats.Splats++
	}

	if err := s.run(kernel.AdvectParams{
		Velocity:    velocity.Read(),
		Source:      velocity.Read(),
		Output:      velocity.Write(),
		DT:          dt,
		Dissipation: float32(cfg.VelocityDissipation),
		TexelSize:   texel,
	}); err != nil {
		return err
	}
	s.swap(velocity)

	if err := s.run(kernel.AdvectParams{
		Velocity:    velocity.Read(),
		Source:      density.Read(),
		Output:      density.Write(),
		DT:          dt,
		Dissipation: float32(cfg.DensityDissipation),
		TexelSize:   texel,
	}); err != nil {
		return err
	}
	s.swap(density)

	if err := s.run(kernel.CurlParams{
		Velocity:  velocity.Read(),
		Output:    st.Curl(),
		TexelSize: texel,
	}); err != nil {
		return err
	}

	if err := s.run(kernel.VorticityParams{
		Velocity:  velocity.Read(),
		Curl:      st.Curl(),
		Output:    velocity.Write(),
		Strength:  float32(cfg.CurlStrength),
		DT:        dt,
		TexelSize: texel,
	}); err != nil {
		return err
	}
	s.swap(velocity)

	if err := s.run(kernel.DivergenceParams{
		Velocity:  velocity.Read(),
		Output:    st.Divergence(),
		TexelSize: texel,
	}); err != nil {
		return err
	}

	if err := s.run(kernel.PressureClearParams{
		Pressure:  pressure.Read(),
		Output:    pressure.Write(),
		Decay:     float32(cfg.PressureDissipation),
		TexelSize: texel,
	}); err != nil {
		return err
	}
	s.swap(pressure)

	for i := 0; i < cfg.PressureIterations; i++ {
		if err := s.run(kernel.PressureSolveParams{
			Pressure:   pressure.Read(),
			Divergence: st.Divergence(),
			Output:     pressure.Write(),
			TexelSize:  texel,
		}); err != nil {
			return err
		}
		s.swap(pressure)
	}

	if err := s.run(kernel.GradientParams{
		Pressure:  pressure.Read(),
		Velocity:  velocity.Read(),
		Output:    velocity.Write(),
		TexelSize: texel,
	}); err != nil {
		return err
	}
	s.swap(velocity)
	return nil
}
