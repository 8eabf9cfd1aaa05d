package field

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Names of the fields owned by a Store.
const (
	Velocity   = "velocity"
	Density    = "density"
	Pressure   = "pressure"
	Curl       = "curl"
	Divergence = "divergence"
)

// Store owns every simulation field at a single resolution. It is the only
// component allowed to allocate or release field storage.
type Store struct {
	alloc      Allocator
	downsample int

	width, height int
	texel         mgl32.Vec2
	generation    uint64

	velocity   *DoubleBuffer
	density    *DoubleBuffer
	pressure   *DoubleBuffer
	curl       *Field
	divergence *Field

	disposed bool
}

// SimSize returns the simulation resolution for a surface and downsample
// factor, clamped to at least 1x1.
func SimSize(surfaceW, surfaceH, downsample int) (int, int) {
	if downsample < 1 {
		downsample = 1
	}
	w := surfaceW / downsample
	h := surfaceH / downsample
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// NewStore allocates all fields for a surfaceW x surfaceH surface.
// Allocation is all-or-nothing: on error nothing stays allocated.
func NewStore(a Allocator, surfaceW, surfaceH, downsample int) (*Store, error) {
	if a == nil {
		return nil, fmt.Errorf("field store: nil allocator")
	}
	if downsample < 1 {
		downsample = 1
	}
	s := &Store{alloc: a, downsample: downsample}
	w, h := SimSize(surfaceW, surfaceH, downsample)
	if err := s.allocateAll(w, h); err != nil {
		return nil, err
	}
	return s, nil
}

type doubleLayout struct {
	name       string
	components int
	dst        **DoubleBuffer
}

type singleLayout struct {
	name       string
	components int
	dst        **Field
}

// allocateAll builds a complete field set at w x h and only installs it once
// every allocation has succeeded.
func (s *Store) allocateAll(w, h int) error {
	var (
		velocity, density, pressure *DoubleBuffer
		curl, divergence            *Field
		created                     []*Field
	)
	rollback := func() {
		for _, f := range created {
			f.release()
		}
	}
	doubles := []doubleLayout{
		{Velocity, 2, &velocity},
		{Density, 4, &density},
		{Pressure, 1, &pressure},
	}
	for _, l := range doubles {
		a, err := allocate(s.alloc, l.name, w, h, l.components)
		if err != nil {
			rollback()
			return err
		}
		created = append(created, a)
		b, err := allocate(s.alloc, l.name, w, h, l.components)
		if err != nil {
			rollback()
			return err
		}
		created = append(created, b)
		*l.dst = newDoubleBuffer(a, b)
	}
	singles := []singleLayout{
		{Curl, 1, &curl},
		{Divergence, 1, &divergence},
	}
	for _, l := range singles {
		f, err := allocate(s.alloc, l.name, w, h, l.components)
		if err != nil {
			rollback()
			return err
		}
		created = append(created, f)
		*l.dst = f
	}

	s.velocity, s.density, s.pressure = velocity, density, pressure
	s.curl, s.divergence = curl, divergence
	s.width, s.height = w, h
	s.texel = mgl32.Vec2{1 / float32(w), 1 / float32(h)}
	s.generation++
	return nil
}

func (s *Store) releaseAll() {
	for _, d := range []*DoubleBuffer{s.velocity, s.density, s.pressure} {
		if d != nil {
			d.release()
		}
	}
	for _, f := range []*Field{s.curl, s.divergence} {
		if f != nil {
			f.release()
		}
	}
	s.velocity, s.density, s.pressure = nil, nil, nil
	s.curl, s.divergence = nil, nil
}

// Resize reallocates every field for a new surface size. Handles obtained
// before the call become invalid. When the simulation resolution does not
// change, Resize does nothing and reports false.
func (s *Store) Resize(surfaceW, surfaceH int) (bool, error) {
	if s.disposed {
		return false, ErrDisposed
	}
	w, h := SimSize(surfaceW, surfaceH, s.downsample)
	if w == s.width && h == s.height {
		return false, nil
	}
	return true, s.reallocate(w, h)
}

// SetDownsample changes the downsample factor and reallocates if the
// resulting simulation resolution differs.
func (s *Store) SetDownsample(surfaceW, surfaceH, downsample int) (bool, error) {
	if s.disposed {
		return false, ErrDisposed
	}
	if downsample < 1 {
		downsample = 1
	}
	s.downsample = downsample
	return s.Resize(surfaceW, surfaceH)
}

func (s *Store) reallocate(w, h int) error {
	logger().Debug("field store resize", "from_w", s.width, "from_h", s.height, "to_w", w, "to_h", h)
	s.releaseAll()
	if err := s.allocateAll(w, h); err != nil {
		// Nothing is left allocated; the store is unusable until the next
		// successful Resize.
		s.width, s.height = 0, 0
		return err
	}
	return nil
}

// Dispose releases every field. Further calls are no-ops.
func (s *Store) Dispose() {
	if s.disposed {
		return
	}
	s.releaseAll()
	s.disposed = true
}

// Disposed reports whether Dispose has been called.
func (s *Store) Disposed() bool { return s.disposed }

// Ready reports whether every field is allocated and usable.
func (s *Store) Ready() bool {
	return !s.disposed && s.velocity.Valid() && s.density.Valid() && s.pressure.Valid() &&
		s.curl.Valid() && s.divergence.Valid()
}

// Size returns the simulation resolution.
func (s *Store) Size() (int, int) { return s.width, s.height }

// Downsample returns the active downsample factor.
func (s *Store) Downsample() int { return s.downsample }

// TexelSize returns (1/W, 1/H) at simulation resolution.
func (s *Store) TexelSize() mgl32.Vec2 { return s.texel }

// AspectRatio returns W/H at simulation resolution.
func (s *Store) AspectRatio() float32 {
	if s.height == 0 {
		return 1
	}
	return float32(s.width) / float32(s.height)
}

// Generation increases every time the field set is reallocated.
func (s *Store) Generation() uint64 { return s.generation }

func (s *Store) Velocity() *DoubleBuffer { return s.velocity }
func (s *Store) Density() *DoubleBuffer  { return s.density }
func (s *Store) Pressure() *DoubleBuffer { return s.pressure }
func (s *Store) Curl() *Field            { return s.curl }
func (s *Store) Divergence() *Field      { return s.divergence }
