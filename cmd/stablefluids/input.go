package main

import (
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/pointer"
)

// handleControls processes hotkeys: Space queues a random splat burst,
// -/+ adjust the Jacobi iteration count, Escape quits.
func (g *Game) handleControls() {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.quit = true
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.session.QueueRandomSplats(randomBurstSize)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract) {
		g.adjustPressureIterations(-pressureIterationsStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd) {
		g.adjustPressureIterations(pressureIterationsStep)
	}
}

// adjustPressureIterations clamps the iteration delta within bounds and
// stages it for the next tick.
func (g *Game) adjustPressureIterations(delta int) {
	n := g.cfg.PressureIterations + delta
	if n < config.MinPressureIterations {
		n = config.MinPressureIterations
	} else if n > config.MaxPressureIterations {
		n = config.MaxPressureIterations
	}
	if n == g.cfg.PressureIterations {
		return
	}
	g.cfg.PressureIterations = n
	if err := g.session.SetConfig(g.cfg); err != nil {
		log.Printf("Rejected pressure iterations %d: %v", n, err)
	}
}

// updateMouse forwards cursor motion inside the window and treats leaving
// the window as a pointer leave.
func (g *Game) updateMouse() {
	x, y := ebiten.CursorPosition()
	w, h := g.surface.Size()
	inside := x >= 0 && y >= 0 && x < w && y < h
	if !inside {
		if g.mouseInside {
			g.mouse.Leave()
		}
		g.mouseInside = false
		return
	}
	if !g.mouseInside || x != g.lastCursorX || y != g.lastCursorY {
		g.mouse.MoveLocal(float64(x), float64(y), float64(w), float64(h))
	}
	g.mouseInside = true
	g.lastCursorX, g.lastCursorY = x, y
}

// updateTouches gives every active touch its own tracker. Released
// trackers are parked for reuse so the session's pointer list stays small.
func (g *Game) updateTouches() {
	w, h := g.surface.Size()
	g.pressedID = inpututil.AppendJustPressedTouchIDs(g.pressedID[:0])
	for _, id := range g.pressedID {
		t := g.takeIdleTracker()
		x, y := ebiten.TouchPosition(id)
		// Prime the position so the first drag does not jump from the
		// previous touch.
		t.MoveLocal(float64(x), float64(y), float64(w), float64(h))
		t.Consume()
		g.touches[id] = t
	}
	g.touchIDs = ebiten.AppendTouchIDs(g.touchIDs[:0])
	for _, id := range g.touchIDs {
		t, ok := g.touches[id]
		if !ok {
			continue
		}
		x, y := ebiten.TouchPosition(id)
		prev := t.Snapshot()
		if float64(x) != prev.X || float64(y) != prev.Y {
			t.MoveLocal(float64(x), float64(y), float64(w), float64(h))
		}
	}
	for id, t := range g.touches {
		if inpututil.IsTouchJustReleased(id) {
			t.Leave()
			g.idle = append(g.idle, t)
			delete(g.touches, id)
		}
	}
}

func (g *Game) takeIdleTracker() *pointer.Tracker {
	if n := len(g.idle); n > 0 {
		t := g.idle[n-1]
		g.idle = g.idle[:n-1]
		return t
	}
	return g.session.AddPointer()
}
