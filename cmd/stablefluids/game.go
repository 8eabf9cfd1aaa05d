package main

import (
	"errors"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/kernel"
	"github.com/Distortions81/stable-fluids/internal/pointer"
	"github.com/Distortions81/stable-fluids/internal/sim"
)

const (
	randomBurstSize        = 10
	pressureIterationsStep = 5
	statsLogInterval       = 5 * time.Second
	pointerMarkerRadius    = 3
)

// windowSurface tracks the logical screen size Ebiten reports through
// Layout.
type windowSurface struct {
	w, h int
}

func (s *windowSurface) Size() (int, int) { return s.w, s.h }

// Game adapts a simulation session to Ebiten's Update/Draw/Layout loop.
type Game struct {
	session *sim.Session
	driver  *sim.Driver
	surface *windowSurface
	cfg     config.Config

	mouse       *pointer.Tracker
	mouseInside bool
	lastCursorX int
	lastCursorY int

	touches   map[ebiten.TouchID]*pointer.Tracker
	idle      []*pointer.Tracker
	touchIDs  []ebiten.TouchID
	pressedID []ebiten.TouchID

	frame           *ebiten.Image
	lastStats       sim.StepStats
	lastSimDuration time.Duration
	lastStatsLog    time.Time
	quit            bool
}

// newGame constructs the session for an initial window size.
func newGame(cfg config.Config, exec kernel.Executor, width, height int) (*Game, error) {
	session, err := sim.NewSession(sim.Options{
		Config:   cfg,
		Executor: exec,
		Width:    width,
		Height:   height,
		Seed:     time.Now().UnixNano(),
	})
	if err != nil {
		return nil, err
	}
	surface := &windowSurface{w: width, h: height}
	g := &Game{
		session: session,
		driver:  sim.NewDriver(session, surface),
		surface: surface,
		cfg:     cfg,
		mouse:   session.AddPointer(),
		touches: make(map[ebiten.TouchID]*pointer.Tracker),
	}
	if *splatsFlag > 0 {
		session.QueueRandomSplats(*splatsFlag)
	}
	w, h := session.SimSize()
	log.Printf("Simulation %dx%d on %s executor", w, h, session.Backend())
	return g, nil
}

// Update feeds input to the trackers and advances the simulation one tick.
func (g *Game) Update() error {
	g.handleControls()
	if g.quit {
		g.driver.Stop()
		return ebiten.Termination
	}
	g.updateMouse()
	g.updateTouches()

	simStart := time.Now()
	stats, err := g.driver.Frame(simStart)
	if errors.Is(err, sim.ErrStopped) {
		return ebiten.Termination
	}
	if err != nil {
		return err
	}
	g.lastStats = stats
	g.lastSimDuration = time.Since(simStart)
	g.logStats(simStart)
	return nil
}

func (g *Game) logStats(now time.Time) {
	if !*debugFlag || now.Sub(g.lastStatsLog) < statsLogInterval {
		return
	}
	g.lastStatsLog = now
	log.Printf("Tick: %d passes, %d swaps, %d splats, dt %.4fs, %.2f ms",
		g.lastStats.Passes, g.lastStats.Swaps, g.lastStats.Splats, g.lastStats.DT,
		g.lastSimDuration.Seconds()*1000)
}

// Layout makes the logical screen match the window; the simulation follows
// it through the driver's resize reconciliation.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth < 1 {
		outsideWidth = 1
	}
	if outsideHeight < 1 {
		outsideHeight = 1
	}
	g.surface.w, g.surface.h = outsideWidth, outsideHeight
	return outsideWidth, outsideHeight
}
