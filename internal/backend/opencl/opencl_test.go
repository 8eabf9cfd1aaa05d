//go:build opencl

package opencl

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Distortions81/stable-fluids/internal/backend/cpu"
	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/kernel"
	"github.com/Distortions81/stable-fluids/internal/sim"
)

const verifyTolerance = 2e-2

func newDevice(t *testing.T) *Executor {
	t.Helper()
	e, err := New()
	if err != nil {
		t.Skipf("no OpenCL device: %v", err)
	}
	return e
}

// Both executors must agree on a short run; half storage on both sides
// rounds identically, so only transcendental differences remain.
func TestMatchesCPUExecutor(t *testing.T) {
	dev := newDevice(t)
	host := cpu.New(cpu.Options{Workers: 2})

	cfg := config.Default()
	cfg.PressureIterations = 10
	newSession := func(e kernel.Executor) *sim.Session {
		s, err := sim.NewSession(sim.Options{Config: cfg, Executor: e, Width: 64, Height: 64, Seed: 3})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(s.Close)
		return s
	}
	a, b := newSession(dev), newSession(host)
	for _, s := range []*sim.Session{a, b} {
		s.QueueSplat(sim.Splat{Point: mgl32.Vec2{0.4, 0.6}, Force: mgl32.Vec2{50, -20}, Color: mgl32.Vec3{1, 0.5, 0.2}})
		for i := 0; i < 3; i++ {
			if _, err := s.Tick(16 * time.Millisecond); err != nil {
				t.Fatalf("%s tick: %v", s.Backend(), err)
			}
		}
	}
	imgA, err := a.Present()
	if err != nil {
		t.Fatal(err)
	}
	imgB, err := b.Present()
	if err != nil {
		t.Fatal(err)
	}
	for i := range imgA.Pix {
		if d := math.Abs(float64(imgA.Pix[i]) - float64(imgB.Pix[i])); d > 255*verifyTolerance {
			t.Fatalf("pixel byte %d: device=%d host=%d", i, imgA.Pix[i], imgB.Pix[i])
		}
	}
}
