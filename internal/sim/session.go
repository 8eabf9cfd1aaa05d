package sim

import (
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"

	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/field"
	"github.com/Distortions81/stable-fluids/internal/kernel"
	"github.com/Distortions81/stable-fluids/internal/pointer"
)

// randomSplatForce is the half-range of the random burst velocity impulse
// in pixels.
const randomSplatForce = 1000

// Options configure a Session.
type Options struct {
	Config   config.Config
	Executor kernel.Executor
	// Width and Height are the initial surface size in pixels.
	Width, Height int
	// Seed drives pointer hues and random splat bursts.
	Seed int64
	// Now is used for pointer color timing. Defaults to time.Now.
	Now func() time.Time
}

// Session is one running simulation: the field store, the executor that
// owns its storage, the pointer trackers feeding it, and the active
// configuration. Tick, Resize, Present and Close are serialised, so a tick
// never observes a half-reallocated store.
type Session struct {
	mu sync.Mutex

	exec  kernel.Executor
	store *field.Store
	sched *Scheduler

	cfg  config.Config
	next *config.Config

	surfaceW, surfaceH int

	trackers []*pointer.Tracker
	queued   []Splat
	rng      *rand.Rand
	seed     int64
	now      func() time.Time

	frame  *image.RGBA
	stats  StepStats
	ticks  uint64
	closed bool
}

// NewSession validates the configuration and allocates every field. The
// session takes ownership of the executor and closes it in Close when it
// has a Close method.
func NewSession(opts Options) (*Session, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("sim: nil executor")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("sim: invalid config: %w", err)
	}
	store, err := field.NewStore(opts.Executor, opts.Width, opts.Height, opts.Config.Downsample)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		exec:     opts.Executor,
		store:    store,
		sched:    NewScheduler(opts.Executor, store),
		cfg:      opts.Config,
		surfaceW: opts.Width,
		surfaceH: opts.Height,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		seed:     opts.Seed,
		now:      opts.Now,
	}
	w, h := store.Size()
	logger().Info("simulation session started", "executor", opts.Executor.Name(),
		"surface_w", opts.Width, "surface_h", opts.Height, "sim_w", w, "sim_h", h)
	return s, nil
}

// AddPointer registers a new pointer tracker whose motion will be applied
// as a splat on the tick after it moves.
func (s *Session) AddPointer() *pointer.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := pointer.NewTracker(pointer.Options{
		Gain:          s.cfg.PointerGain,
		ColorInterval: s.cfg.ColorInterval.Std(),
		Seed:          s.seed + int64(len(s.trackers)),
		Now:           s.now,
	})
	s.trackers = append(s.trackers, t)
	return t
}

// QueueSplat schedules sp for the next tick.
func (s *Session) QueueSplat(sp Splat) {
	s.mu.Lock()
	s.queued = append(s.queued, sp)
	s.mu.Unlock()
}

// QueueRandomSplats schedules n splats with random positions, directions
// and bright colors for the next tick.
func (s *Session) QueueRandomSplats(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	force := float32(s.cfg.SplatForce)
	for i := 0; i < n; i++ {
		color := mgl32.Vec3{s.rng.Float32() * 10, s.rng.Float32() * 10, s.rng.Float32() * 10}
		point := mgl32.Vec2{s.rng.Float32(), s.rng.Float32()}
		dx := randomSplatForce * (s.rng.Float32() - 0.5)
		dy := randomSplatForce * (s.rng.Float32() - 0.5)
		s.queued = append(s.queued, Splat{
			Point: point,
			Force: mgl32.Vec2{dx * force, -dy * force},
			Color: color,
		})
	}
}

// Config returns the configuration used by the most recent tick.
func (s *Session) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig stages cfg. It takes effect at the start of the next tick; a
// changed downsample factor reallocates every field at that point.
func (s *Session) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	s.next = &cfg
	return nil
}

func (s *Session) applyConfigLocked() error {
	if s.next == nil {
		return nil
	}
	cfg := *s.next
	s.next = nil
	if cfg.Downsample != s.store.Downsample() {
		if _, err := s.store.SetDownsample(s.surfaceW, s.surfaceH, cfg.Downsample); err != nil {
			// The store keeps the new factor and reallocates on the next
			// Resize; the rest of cfg stays staged.
			s.cfg.Downsample = s.store.Downsample()
			s.next = &cfg
			s.frame = nil
			return err
		}
		s.frame = nil
	}
	for _, t := range s.trackers {
		t.SetGain(cfg.PointerGain)
		t.SetColorInterval(cfg.ColorInterval.Std())
	}
	s.cfg = cfg
	logger().Debug("config applied", "pressure_iterations", cfg.PressureIterations, "downsample", cfg.Downsample)
	return nil
}

// Tick applies any staged configuration, gathers pointer and queued
// splats, and runs one scheduler step. Queued splats and pointer motion are
// consumed only once their splat passes have run; anything a failed tick
// did not apply is offered again on the next tick.
func (s *Session) Tick(dt time.Duration) (StepStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StepStats{}, ErrStopped
	}
	if err := s.applyConfigLocked(); err != nil {
		return StepStats{}, err
	}

	queued := len(s.queued)
	splats := append([]Splat(nil), s.queued...)
	force := float32(s.cfg.SplatForce)
	scale := float32(s.cfg.SplatColorScale)
	var (
		sources []*pointer.Tracker
		states  []pointer.State
	)
	for _, t := range s.trackers {
		t.Refresh()
		st := t.Snapshot()
		if !st.Active() {
			continue
		}
		sources = append(sources, t)
		states = append(states, st)
		splats = append(splats, Splat{
			Point: st.UV,
			Force: mgl32.Vec2{float32(st.DX) * force, float32(-st.DY) * force},
			Color: st.Color.Mul(scale),
		})
	}

	stats, err := s.sched.Step(dt, s.cfg, splats)
	s.stats = stats
	s.consumeSplatsLocked(stats.Splats, queued, sources, states)
	if err != nil {
		return stats, err
	}
	s.ticks++
	return stats, nil
}

// consumeSplatsLocked drops the first applied splats of a tick: queued
// splats come first, then one per active tracker in order.
func (s *Session) consumeSplatsLocked(applied, queued int, sources []*pointer.Tracker, states []pointer.State) {
	n := applied
	if n > queued {
		n = queued
	}
	s.queued = append(s.queued[:0:0], s.queued[n:]...)
	for i, t := range sources {
		if queued+i >= applied {
			break
		}
		t.ConsumeState(states[i])
	}
}

// Resize reconciles the fields with a new surface size. Nothing happens
// when the simulation resolution is unchanged.
func (s *Session) Resize(surfaceW, surfaceH int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	s.surfaceW, s.surfaceH = surfaceW, surfaceH
	changed, err := s.store.Resize(surfaceW, surfaceH)
	if err != nil {
		return err
	}
	if changed {
		s.frame = nil
		w, h := s.store.Size()
		logger().Debug("session resized", "surface_w", surfaceW, "surface_h", surfaceH, "sim_w", w, "sim_h", h)
	}
	return nil
}

// Present runs the display kernel and returns the tone-mapped density at
// simulation resolution. The image is reused by later calls; callers copy
// it out before the next Present.
func (s *Session) Present() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presentLocked()
}

func (s *Session) presentLocked() (*image.RGBA, error) {
	if s.closed {
		return nil, ErrStopped
	}
	if !s.store.Ready() {
		return nil, ErrNotReady
	}
	w, h := s.store.Size()
	if s.frame == nil || s.frame.Bounds().Dx() != w || s.frame.Bounds().Dy() != h {
		s.frame = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	err := kernel.Run(s.exec, kernel.DisplayParams{
		Density: s.store.Density().Read(),
		Target:  s.frame,
		Gamma:   float32(s.cfg.Gamma),
	})
	if err != nil {
		return nil, err
	}
	return s.frame, nil
}

// PresentScaled renders the display into dst, filtering bilinearly from
// simulation resolution to dst's bounds.
func (s *Session) PresentScaled(dst *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame, err := s.presentLocked()
	if err != nil {
		return err
	}
	if frame.Bounds().Size() == dst.Bounds().Size() {
		xdraw.Copy(dst, dst.Bounds().Min, frame, frame.Bounds(), xdraw.Src, nil)
		return nil
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)
	return nil
}

// SimSize returns the current simulation resolution.
func (s *Session) SimSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Size()
}

// Stats returns the statistics of the last tick.
func (s *Session) Stats() StepStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Ticks returns the number of completed ticks.
func (s *Session) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Backend names the executor in use.
func (s *Session) Backend() string { return s.exec.Name() }

// Close disposes every field and the executor. It is safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.store.Dispose()
	if c, ok := s.exec.(interface{ Close() }); ok {
		c.Close()
	}
	logger().Info("simulation session closed", "ticks", s.ticks)
}
