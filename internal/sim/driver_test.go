package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Distortions81/stable-fluids/internal/backend/cpu"
	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/kernel"
)

type fakeSurface struct{ w, h int }

func (f *fakeSurface) Size() (int, int) { return f.w, f.h }

func TestDriverReconcilesSurfaceSize(t *testing.T) {
	s, _ := newTestSession(t, 64, 64, nil)
	surf := &fakeSurface{64, 64}
	d := NewDriver(s, surf)

	start := time.Unix(0, 0)
	stats, err := d.Frame(start)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if stats.DT != MinDelta {
		t.Errorf("first frame DT = %v, want %v", stats.DT, MinDelta)
	}

	gen := s.store.Generation()
	old := s.store.Velocity().Read()
	surf.w, surf.h = 96, 40
	stats, err = d.Frame(start.Add(40 * time.Millisecond))
	if err != nil {
		t.Fatalf("Frame() after resize error = %v", err)
	}
	if stats.DT != 0.016 {
		t.Errorf("DT = %v, want clamp to 0.016", stats.DT)
	}
	if w, h := s.SimSize(); w != 96 || h != 40 {
		t.Errorf("SimSize() = %dx%d, want 96x40", w, h)
	}
	if texel := s.store.TexelSize(); texel.X() != 1.0/96 || texel.Y() != 1.0/40 {
		t.Errorf("TexelSize() = %v", texel)
	}
	if old.Valid() {
		t.Error("velocity handle from before resize is still valid")
	}
	if s.store.Generation() != gen+1 {
		t.Errorf("Generation() = %d, want %d", s.store.Generation(), gen+1)
	}

	if _, err := d.Frame(start.Add(50 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if s.store.Generation() != gen+1 {
		t.Error("unchanged surface size reallocated the fields")
	}
}

func TestDriverStop(t *testing.T) {
	s, _ := newTestSession(t, 32, 32, nil)
	d := NewDriver(s, &fakeSurface{32, 32})
	if _, err := d.Frame(time.Now()); err != nil {
		t.Fatal(err)
	}
	d.Stop()
	d.Stop()
	if !d.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
	if !s.store.Disposed() {
		t.Error("store not disposed by Stop")
	}
	if _, err := d.Frame(time.Now()); !errors.Is(err, ErrStopped) {
		t.Errorf("Frame() after Stop = %v, want ErrStopped", err)
	}
}

func TestDriverRun(t *testing.T) {
	s, _ := newTestSession(t, 32, 32, func(c *config.Config) { c.PressureIterations = 2 })
	d := NewDriver(s, &fakeSurface{32, 32})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := 0
	err := d.Run(ctx, time.Millisecond, func(StepStats) error {
		frames++
		if frames == 3 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if frames < 3 {
		t.Errorf("frames = %d, want >= 3", frames)
	}
	if !d.Stopped() {
		t.Error("Run returned without stopping the driver")
	}

	boom := errors.New("present failed")
	s2, _ := newTestSession(t, 32, 32, nil)
	d2 := NewDriver(s2, &fakeSurface{32, 32})
	if err := d2.Run(context.Background(), time.Millisecond, func(StepStats) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Run() = %v, want present error", err)
	}
}

func TestDriverReportsPresentFailureOnNextFrame(t *testing.T) {
	exec := &failingExecutor{Executor: cpu.New(cpu.Options{Workers: 1}), kernel: kernel.Display, failAt: 1}
	s, err := NewSession(Options{Config: config.Default(), Executor: exec, Width: 16, Height: 16})
	if err != nil {
		t.Fatal(err)
	}
	d := NewDriver(s, &fakeSurface{16, 16})
	defer d.Stop()

	start := time.Unix(0, 0)
	if _, err := d.Frame(start); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Present(); err == nil {
		t.Fatal("Present() succeeded although the display pass failed")
	}

	_, err = d.Frame(start.Add(tick))
	var ee *kernel.ExecutionError
	if !errors.As(err, &ee) || ee.Kernel != kernel.Display {
		t.Fatalf("Frame() after failed present = %v, want display ExecutionError", err)
	}
	if s.Ticks() != 1 {
		t.Errorf("Ticks() = %d, want 1 (failed frame must not tick)", s.Ticks())
	}

	if _, err := d.Frame(start.Add(2 * tick)); err != nil {
		t.Errorf("Frame() reported the same present failure twice: %v", err)
	}
	if _, err := d.Present(); err != nil {
		t.Errorf("Present() error = %v", err)
	}
}
