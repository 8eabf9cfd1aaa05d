package main

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

var pointerMarkerColor = color.RGBA{255, 255, 255, 160}

// Draw presents the tone-mapped dye field scaled to the window, plus the
// optional pointer markers and debug overlay.
func (g *Game) Draw(screen *ebiten.Image) {
	// A failed display pass is returned by the next Update through the
	// driver; the previous frame stays on screen until then.
	img, err := g.driver.Present()
	if err != nil {
		return
	}
	b := img.Bounds()
	if g.frame == nil || g.frame.Bounds().Dx() != b.Dx() || g.frame.Bounds().Dy() != b.Dy() {
		if g.frame != nil {
			g.frame.Deallocate()
		}
		g.frame = ebiten.NewImage(b.Dx(), b.Dy())
	}
	g.frame.WritePixels(img.Pix)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(sw)/float64(b.Dx()), float64(sh)/float64(b.Dy()))
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(g.frame, op)

	if *showPointerFlag {
		g.drawPointerMarkers(screen)
	}

	if *debugFlag {
		w, h := g.session.SimSize()
		debugMsg := fmt.Sprintf("FPS: %.1f  TPS: %.1f\nSim: %dx%d on %s\nPasses: %d  Splats: %d\nJacobi: %d (-/+)\nTick: %.2f ms",
			ebiten.ActualFPS(), ebiten.ActualTPS(), w, h, g.session.Backend(),
			g.lastStats.Passes, g.lastStats.Splats, g.cfg.PressureIterations,
			g.lastSimDuration.Seconds()*1000)
		ebitenutil.DebugPrint(screen, debugMsg)
	}
}

func (g *Game) drawPointerMarkers(screen *ebiten.Image) {
	if g.mouseInside {
		drawMarker(screen, g.lastCursorX, g.lastCursorY)
	}
	for _, t := range g.touches {
		s := t.Snapshot()
		drawMarker(screen, int(s.X), int(s.Y))
	}
}

func drawMarker(screen *ebiten.Image, cx, cy int) {
	b := screen.Bounds()
	for _, o := range markerFootprint {
		x, y := cx+o.dx, cy+o.dy
		if x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
			screen.Set(x, y, pointerMarkerColor)
		}
	}
}
