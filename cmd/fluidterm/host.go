package main

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/kernel"
	"github.com/Distortions81/stable-fluids/internal/logging"
	"github.com/Distortions81/stable-fluids/internal/pointer"
	"github.com/Distortions81/stable-fluids/internal/sim"
)

const (
	upperHalfBlock  = '▀'
	randomBurstSize = 10
	iterationsStep  = 5
	eventQueueSize  = 100
)

// cellSurface maps a terminal to simulation pixels: one column per cell,
// two rows per cell.
type cellSurface struct {
	screen tcell.Screen
}

func (s cellSurface) Size() (int, int) {
	w, h := s.screen.Size()
	return w, h * 2
}

type host struct {
	screen  tcell.Screen
	session *sim.Session
	driver  *sim.Driver
	surface cellSurface
	mouse   *pointer.Tracker
	cfg     config.Config

	canvas    *image.RGBA
	done      chan struct{}
	closeOnce sync.Once
}

func newHost(screen tcell.Screen, cfg config.Config, exec kernel.Executor) (*host, error) {
	surface := cellSurface{screen: screen}
	w, h := surface.Size()
	session, err := sim.NewSession(sim.Options{
		Config:   cfg,
		Executor: exec,
		Width:    w,
		Height:   h,
		Seed:     time.Now().UnixNano(),
	})
	if err != nil {
		return nil, err
	}
	screen.EnableMouse(tcell.MouseMotionEvents)
	screen.EnableFocus()
	screen.HideCursor()
	return &host{
		screen:  screen,
		session: session,
		driver:  sim.NewDriver(session, surface),
		surface: surface,
		mouse:   session.AddPointer(),
		cfg:     cfg,
		done:    make(chan struct{}),
	}, nil
}

// run polls terminal events on one goroutine and drives frames on another
// until the user quits, ctx ends, or a frame fails.
func (h *host) run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	events := make(chan tcell.Event, eventQueueSize)
	g.Go(func() error { return h.pollEvents(ctx, events) })
	g.Go(func() error { return h.loop(ctx, events, interval) })
	return g.Wait()
}

func (h *host) pollEvents(ctx context.Context, events chan<- tcell.Event) error {
	for {
		ev := h.screen.PollEvent()
		if ev == nil {
			return nil
		}
		select {
		case events <- ev:
		case <-h.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *host) loop(ctx context.Context, events <-chan tcell.Event, interval time.Duration) error {
	defer h.close()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if !h.handleEvent(ev) {
				return nil
			}
		case now := <-ticker.C:
			if err := h.frame(now); err != nil {
				if errors.Is(err, sim.ErrStopped) {
					return nil
				}
				return err
			}
		}
	}
}

// close stops the simulation and restores the terminal. PollEvent returns
// nil afterwards, which ends the event goroutine.
func (h *host) close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.driver.Stop()
		h.screen.Fini()
	})
}

// handleEvent applies one terminal event and reports whether to keep
// running.
func (h *host) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch {
		case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC:
			return false
		case ev.Key() == tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case ' ':
				h.session.QueueRandomSplats(randomBurstSize)
			case '-':
				h.adjustIterations(-iterationsStep)
			case '+', '=':
				h.adjustIterations(iterationsStep)
			}
		}
	case *tcell.EventMouse:
		x, y := ev.Position()
		w, hh := h.surface.Size()
		h.mouse.MoveLocal(float64(x)+0.5, float64(2*y+1), float64(w), float64(hh))
	case *tcell.EventFocus:
		if !ev.Focused {
			h.mouse.Leave()
		}
	case *tcell.EventResize:
		h.screen.Sync()
	}
	return true
}

func (h *host) adjustIterations(delta int) {
	n := h.cfg.PressureIterations + delta
	if n < config.MinPressureIterations {
		n = config.MinPressureIterations
	} else if n > config.MaxPressureIterations {
		n = config.MaxPressureIterations
	}
	h.cfg.PressureIterations = n
	if err := h.session.SetConfig(h.cfg); err != nil {
		// Stderr belongs to the screen; report through the debug log.
		logging.Logger().Warn("pressure iterations rejected", "iterations", n, "err", err)
	}
}

// frame ticks the simulation and paints it.
func (h *host) frame(now time.Time) error {
	if _, err := h.driver.Frame(now); err != nil {
		return err
	}
	return h.draw()
}

// draw renders the dye field with upper half blocks: the foreground colors
// the top simulation row of a cell, the background the bottom row.
func (h *host) draw() error {
	w, hh := h.surface.Size()
	if h.canvas == nil || h.canvas.Bounds().Dx() != w || h.canvas.Bounds().Dy() != hh {
		h.canvas = image.NewRGBA(image.Rect(0, 0, w, hh))
	}
	if err := h.driver.PresentScaled(h.canvas); err != nil {
		return err
	}
	for y := 0; y < hh/2; y++ {
		for x := 0; x < w; x++ {
			top := h.canvas.RGBAAt(x, 2*y)
			bottom := h.canvas.RGBAAt(x, 2*y+1)
			style := tcell.StyleDefault.
				Foreground(tcell.NewRGBColor(int32(top.R), int32(top.G), int32(top.B))).
				Background(tcell.NewRGBColor(int32(bottom.R), int32(bottom.G), int32(bottom.B)))
			h.screen.SetContent(x, y, upperHalfBlock, nil, style)
		}
	}
	h.screen.Show()
	return nil
}
