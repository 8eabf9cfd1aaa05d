package field

import (
	"errors"
	"testing"
)

type fakeTexture struct {
	alloc    *fakeAllocator
	released bool
}

func (t *fakeTexture) Release() {
	if !t.released {
		t.released = true
		t.alloc.live--
	}
}

type fakeAllocator struct {
	supported map[Format]bool
	failAfter int // fail the n-th allocation (1-based); 0 disables
	calls     int
	live      int
}

func newFakeAllocator(formats ...Format) *fakeAllocator {
	a := &fakeAllocator{supported: map[Format]bool{}}
	for _, f := range formats {
		a.supported[f] = true
	}
	return a
}

func (a *fakeAllocator) SupportsFormat(f Format) bool { return a.supported[f] }

func (a *fakeAllocator) Allocate(w, h int, f Format) (Texture, error) {
	a.calls++
	if a.failAfter > 0 && a.calls >= a.failAfter {
		return nil, errors.New("out of device memory")
	}
	a.live++
	return &fakeTexture{alloc: a}, nil
}

func allFormats() []Format {
	return []Format{R16F, RG16F, RGBA16F, R32F, RG32F, RGBA32F}
}

func TestFallbackChain(t *testing.T) {
	tests := []struct {
		components int
		want       []Format
	}{
		{1, []Format{R16F, RG16F, RGBA16F, R32F, RG32F, RGBA32F}},
		{2, []Format{RG16F, RGBA16F, RG32F, RGBA32F}},
		{4, []Format{RGBA16F, RGBA32F}},
	}
	for _, tt := range tests {
		got := FallbackChain(tt.components)
		if len(got) != len(tt.want) {
			t.Fatalf("FallbackChain(%d) = %v, want %v", tt.components, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("FallbackChain(%d)[%d] = %v, want %v", tt.components, i, got[i], tt.want[i])
			}
		}
	}
}

func TestSimSize(t *testing.T) {
	tests := []struct {
		w, h, ds     int
		wantW, wantH int
	}{
		{256, 256, 1, 256, 256},
		{801, 600, 2, 400, 300},
		{3, 3, 4, 1, 1},
		{0, 0, 1, 1, 1},
		{100, 50, 0, 100, 50},
	}
	for _, tt := range tests {
		w, h := SimSize(tt.w, tt.h, tt.ds)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("SimSize(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.ds, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestNewStoreShapesAndFormats(t *testing.T) {
	a := newFakeAllocator(allFormats()...)
	s, err := NewStore(a, 640, 480, 2)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if w, h := s.Size(); w != 320 || h != 240 {
		t.Fatalf("Size() = %dx%d, want 320x240", w, h)
	}
	checks := []struct {
		f    *Field
		comp int
		fmt  Format
	}{
		{s.Velocity().Read(), 2, RG16F},
		{s.Velocity().Write(), 2, RG16F},
		{s.Density().Read(), 4, RGBA16F},
		{s.Pressure().Read(), 1, R16F},
		{s.Curl(), 1, R16F},
		{s.Divergence(), 1, R16F},
	}
	for _, c := range checks {
		if c.f.Width != 320 || c.f.Height != 240 {
			t.Errorf("%s shape = %dx%d, want 320x240", c.f.Name, c.f.Width, c.f.Height)
		}
		if c.f.Components != c.comp {
			t.Errorf("%s components = %d, want %d", c.f.Name, c.f.Components, c.comp)
		}
		if c.f.Format != c.fmt {
			t.Errorf("%s format = %v, want %v", c.f.Name, c.f.Format, c.fmt)
		}
	}
	if a.live != 8 {
		t.Errorf("live textures = %d, want 8", a.live)
	}
	texel := s.TexelSize()
	if texel.X() != 1.0/320 || texel.Y() != 1.0/240 {
		t.Errorf("TexelSize() = %v, want (1/320, 1/240)", texel)
	}
}

func TestNewStoreWidensWhenNarrowFormatsMissing(t *testing.T) {
	a := newFakeAllocator(RGBA16F)
	s, err := NewStore(a, 8, 8, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, f := range []*Field{s.Pressure().Read(), s.Curl(), s.Velocity().Read()} {
		if f.Format != RGBA16F {
			t.Errorf("%s format = %v, want RGBA16F", f.Name, f.Format)
		}
	}
	if s.Curl().Components != 1 {
		t.Errorf("curl components = %d, want 1 regardless of storage width", s.Curl().Components)
	}
}

func TestNewStoreFallsBackToFloat32(t *testing.T) {
	a := newFakeAllocator(R32F, RG32F, RGBA32F)
	s, err := NewStore(a, 4, 4, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := s.Density().Read().Format; got != RGBA32F {
		t.Errorf("density format = %v, want RGBA32F", got)
	}
}

func TestNewStoreNoUsableFormat(t *testing.T) {
	a := newFakeAllocator(R16F)
	_, err := NewStore(a, 4, 4, 1)
	if err == nil {
		t.Fatal("NewStore succeeded without a two-channel format")
	}
	if !errors.Is(err, ErrAllocation) {
		t.Errorf("error %v does not match ErrAllocation", err)
	}
	var allocErr *AllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("error %T is not *AllocationError", err)
	}
	if allocErr.Field != Velocity {
		t.Errorf("failed field = %q, want %q", allocErr.Field, Velocity)
	}
	if a.live != 0 {
		t.Errorf("live textures after failed init = %d, want 0", a.live)
	}
}

func TestNewStoreRollsBackOnMidwayFailure(t *testing.T) {
	a := newFakeAllocator(allFormats()...)
	a.failAfter = 5
	_, err := NewStore(a, 16, 16, 1)
	if err == nil {
		t.Fatal("expected allocation failure")
	}
	if a.live != 0 {
		t.Errorf("live textures after rollback = %d, want 0", a.live)
	}
}

func TestResizeReconciliation(t *testing.T) {
	a := newFakeAllocator(allFormats()...)
	s, err := NewStore(a, 64, 64, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	oldVel := s.Velocity()
	oldRead := oldVel.Read()
	oldCurl := s.Curl()
	gen := s.Generation()

	changed, err := s.Resize(100, 50)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if !changed {
		t.Fatal("Resize reported no change for new dimensions")
	}
	for _, f := range []*Field{s.Velocity().Read(), s.Density().Write(), s.Pressure().Read(), s.Curl(), s.Divergence()} {
		if f.Width != 100 || f.Height != 50 {
			t.Errorf("%s shape = %dx%d, want 100x50", f.Name, f.Width, f.Height)
		}
	}
	if texel := s.TexelSize(); texel.X() != 1.0/100 || texel.Y() != 1.0/50 {
		t.Errorf("TexelSize() = %v, want (0.01, 0.02)", texel)
	}
	if oldRead.Valid() || oldCurl.Valid() || oldVel.Valid() {
		t.Error("handles from before Resize are still valid")
	}
	if s.Generation() != gen+1 {
		t.Errorf("Generation() = %d, want %d", s.Generation(), gen+1)
	}
	if a.live != 8 {
		t.Errorf("live textures = %d, want 8", a.live)
	}
}

func TestResizeSameDimensionsIsNoop(t *testing.T) {
	a := newFakeAllocator(allFormats()...)
	s, err := NewStore(a, 64, 32, 2)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := s.Velocity().Read()
	calls := a.calls
	// 65/2 floors to the same simulation width.
	changed, err := s.Resize(65, 33)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if changed {
		t.Error("Resize reported a change for identical simulation size")
	}
	if s.Velocity().Read() != before || !before.Valid() {
		t.Error("no-op Resize replaced the velocity handle")
	}
	if a.calls != calls {
		t.Errorf("no-op Resize allocated %d textures", a.calls-calls)
	}
}

func TestResizeFailureLeavesNothingAllocated(t *testing.T) {
	a := newFakeAllocator(allFormats()...)
	s, err := NewStore(a, 8, 8, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a.failAfter = a.calls + 3
	if _, err := s.Resize(16, 16); !errors.Is(err, ErrAllocation) {
		t.Fatalf("Resize error = %v, want ErrAllocation", err)
	}
	if s.Ready() {
		t.Error("store reports Ready after failed resize")
	}
	if a.live != 0 {
		t.Errorf("live textures = %d, want 0", a.live)
	}
	a.failAfter = 0
	if _, err := s.Resize(16, 16); err != nil {
		t.Fatalf("retry Resize: %v", err)
	}
	if !s.Ready() {
		t.Error("store not Ready after successful retry")
	}
}

func TestDispose(t *testing.T) {
	a := newFakeAllocator(allFormats()...)
	s, err := NewStore(a, 8, 8, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	d := s.Density()
	s.Dispose()
	s.Dispose()
	if a.live != 0 {
		t.Errorf("live textures after Dispose = %d, want 0", a.live)
	}
	if d.Valid() {
		t.Error("density handle valid after Dispose")
	}
	if _, err := s.Resize(4, 4); !errors.Is(err, ErrDisposed) {
		t.Errorf("Resize after Dispose = %v, want ErrDisposed", err)
	}
}

func TestDoubleBufferParity(t *testing.T) {
	a := newFakeAllocator(allFormats()...)
	s, err := NewStore(a, 8, 8, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, n := range []int{1, 2, 3, 30, 31} {
		d := s.Pressure()
		r0, w0 := d.Read(), d.Write()
		for i := 0; i < n; i++ {
			d.Swap()
		}
		same := d.Read() == r0 && d.Write() == w0
		if n%2 == 0 && !same {
			t.Errorf("after %d swaps handles differ from start", n)
		}
		if n%2 == 1 && (same || d.Read() != w0 || d.Write() != r0) {
			t.Errorf("after %d swaps handles were not exchanged", n)
		}
	}
}
