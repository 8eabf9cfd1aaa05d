// Package pointer turns raw pointer motion into the forcing signal consumed
// by the simulation: position, scaled motion delta, and a slowly cycling dye
// color.
package pointer

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// GoldenRatioStep is the hue increment applied on every color change. Being
// irrational, it never repeats and spreads hues evenly over the circle.
const GoldenRatioStep = 0.618033988749895

const (
	DefaultGain          = 8.0
	DefaultColorInterval = 100 * time.Millisecond
	colorSaturation      = 0.9
	colorLightness       = 0.4
)

// Bounds is the surface bounding rectangle in device coordinates.
type Bounds struct {
	Left, Top     float64
	Width, Height float64
}

// State is a consistent copy of a tracker's forcing data.
type State struct {
	X, Y            float64
	DX, DY          float64
	Moved           bool
	Color           mgl32.Vec3
	UV              mgl32.Vec2
	LastColorChange time.Time
	// Seq counts move events; it identifies which motion a state carries.
	Seq uint64
}

// Active reports whether the state carries unconsumed motion.
func (s State) Active() bool { return s.Moved }

// Options configure a Tracker. Zero values select the defaults.
type Options struct {
	Gain          float64
	ColorInterval time.Duration
	Seed          int64
	Now           func() time.Time
}

// Tracker is a single pointer's state machine: Idle until a move event,
// Active until the scheduler consumes the motion or the pointer leaves.
// Input callbacks and the simulation tick may run on different goroutines;
// every compound update happens under mu.
type Tracker struct {
	mu sync.Mutex

	gain     float64
	interval time.Duration
	now      func() time.Time

	x, y     float64
	dx, dy   float64
	moved    bool
	width    float64
	height   float64
	hue      float64
	color    mgl32.Vec3
	lastTint time.Time
	changes  int
	seq      uint64
}

// NewTracker returns an idle tracker whose initial hue is drawn from
// opts.Seed.
func NewTracker(opts Options) *Tracker {
	if !(opts.Gain > 0) {
		opts.Gain = DefaultGain
	}
	if opts.ColorInterval <= 0 {
		opts.ColorInterval = DefaultColorInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	return &Tracker{
		gain:     opts.Gain,
		interval: opts.ColorInterval,
		now:      opts.Now,
		hue:      rng.Float64(),
		color:    mgl32.Vec3{1, 1, 1},
	}
}

// SetGain changes the motion gain applied to future move events.
// Non-positive gains are ignored, as in NewTracker.
func (t *Tracker) SetGain(k float64) {
	if !(k > 0) {
		return
	}
	t.mu.Lock()
	t.gain = k
	t.mu.Unlock()
}

// SetColorInterval changes the minimum time between color changes.
func (t *Tracker) SetColorInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.interval = d
	t.mu.Unlock()
}

// Move records a pointer move given device coordinates and the surface
// bounding rectangle, moving the tracker to Active.
func (t *Tracker) Move(clientX, clientY float64, b Bounds) {
	t.MoveLocal(clientX-b.Left, clientY-b.Top, b.Width, b.Height)
}

// MoveLocal records a move already expressed in surface-local pixels for a
// surface of the given size.
func (t *Tracker) MoveLocal(x, y, surfaceW, surfaceH float64) {
	now := t.now()
	t.mu.Lock()
	t.dx = (x - t.x) * t.gain
	t.dy = (y - t.y) * t.gain
	t.x, t.y = x, y
	t.width, t.height = surfaceW, surfaceH
	t.moved = true
	t.seq++
	t.advanceColorLocked(now)
	t.mu.Unlock()
}

// Leave handles pointer-leave/cancel: motion is dropped and the delta zeroed
// so re-entry starts without a stale impulse.
func (t *Tracker) Leave() {
	t.mu.Lock()
	t.moved = false
	t.dx, t.dy = 0, 0
	t.mu.Unlock()
}

// Consume returns the tracker to Idle. Position and delta are untouched.
func (t *Tracker) Consume() {
	t.mu.Lock()
	t.moved = false
	t.mu.Unlock()
}

// Snapshot returns a consistent copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// ConsumeState returns the tracker to Idle only if no move arrived after s
// was taken, so motion recorded since the snapshot stays Active.
func (t *Tracker) ConsumeState(s State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.moved || t.seq != s.Seq {
		return false
	}
	t.moved = false
	return true
}

// TakeForcing atomically snapshots the state and, if it was Active,
// consumes it. A move arriving concurrently is either included whole or
// left for the next call.
func (t *Tracker) TakeForcing() (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateLocked()
	if !s.Moved {
		return s, false
	}
	t.moved = false
	return s, true
}

// UV returns the pointer position normalised to [0,1]x[0,1] with the origin
// at the bottom-left of the surface.
func (t *Tracker) UV() mgl32.Vec2 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uvLocked()
}

// Hue returns the current hue in [0,1).
func (t *Tracker) Hue() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hue
}

// ColorChanges returns how many times the color has advanced.
func (t *Tracker) ColorChanges() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changes
}

// Refresh applies the color-cycling rule without a move event.
func (t *Tracker) Refresh() {
	now := t.now()
	t.mu.Lock()
	t.advanceColorLocked(now)
	t.mu.Unlock()
}

func (t *Tracker) stateLocked() State {
	return State{
		X:               t.x,
		Y:               t.y,
		DX:              t.dx,
		DY:              t.dy,
		Moved:           t.moved,
		Color:           t.color,
		UV:              t.uvLocked(),
		LastColorChange: t.lastTint,
		Seq:             t.seq,
	}
}

func (t *Tracker) uvLocked() mgl32.Vec2 {
	if t.width <= 0 || t.height <= 0 {
		return mgl32.Vec2{}
	}
	return mgl32.Vec2{float32(t.x / t.width), float32(1 - t.y/t.height)}
}

func (t *Tracker) advanceColorLocked(now time.Time) {
	if !t.lastTint.IsZero() && now.Sub(t.lastTint) <= t.interval {
		return
	}
	t.hue = math.Mod(t.hue+GoldenRatioStep, 1)
	t.color = HueColor(t.hue)
	t.lastTint = now
	t.changes++
}

// HueColor converts a hue in [0,1) to the dye color used for splats.
func HueColor(hue float64) mgl32.Vec3 {
	c := colorful.Hsl(hue*360, colorSaturation, colorLightness)
	return mgl32.Vec3{float32(c.R), float32(c.G), float32(c.B)}
}
