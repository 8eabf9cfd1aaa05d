package sim

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Surface is the presentation target whose pixel size the fields follow.
type Surface interface {
	Size() (width, height int)
}

// Driver turns host frames into ticks: it measures elapsed time, keeps the
// fields matched to the surface, and stops the session exactly once.
type Driver struct {
	session *Session
	surface Surface

	last     time.Time
	stopped  atomic.Bool
	stopOnce sync.Once

	mu         sync.Mutex
	presentErr error
}

// NewDriver returns a driver for session presenting to surface.
func NewDriver(session *Session, surface Surface) *Driver {
	return &Driver{session: session, surface: surface}
}

// Session returns the driven session.
func (d *Driver) Session() *Session { return d.session }

// Frame runs one tick for a frame that started at now. The first frame
// simulates the minimum time step.
func (d *Driver) Frame(now time.Time) (StepStats, error) {
	if d.stopped.Load() {
		return StepStats{}, ErrStopped
	}
	if err := d.takePresentErr(); err != nil {
		return StepStats{}, err
	}
	if w, h := d.surface.Size(); w > 0 && h > 0 {
		if err := d.session.Resize(w, h); err != nil {
			return StepStats{}, err
		}
	}
	var dt time.Duration
	if !d.last.IsZero() {
		dt = now.Sub(d.last)
	}
	d.last = now
	return d.session.Tick(dt)
}

// Present runs the display pass. A kernel failure is returned and also
// held for the next Frame, for hosts whose draw callback has no error
// return.
func (d *Driver) Present() (*image.RGBA, error) {
	img, err := d.session.Present()
	d.holdPresentErr(err)
	return img, err
}

// PresentScaled is Present scaled into dst.
func (d *Driver) PresentScaled(dst *image.RGBA) error {
	err := d.session.PresentScaled(dst)
	d.holdPresentErr(err)
	return err
}

func (d *Driver) holdPresentErr(err error) {
	// Stopped and not-ready sessions already surface through Frame.
	if err == nil || errors.Is(err, ErrStopped) || errors.Is(err, ErrNotReady) {
		return
	}
	d.mu.Lock()
	if d.presentErr == nil {
		d.presentErr = err
	}
	d.mu.Unlock()
}

func (d *Driver) takePresentErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.presentErr
	d.presentErr = nil
	return err
}

// Run calls Frame every interval until ctx is done, Stop is called, or a
// frame fails. After each tick, present is called when non-nil. Run stops
// the session before returning.
func (d *Driver) Run(ctx context.Context, interval time.Duration, present func(StepStats) error) error {
	defer d.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			stats, err := d.Frame(now)
			if errors.Is(err, ErrStopped) {
				return nil
			}
			if err != nil {
				return err
			}
			if present != nil {
				if err := present(stats); err != nil {
					return err
				}
			}
		}
	}
}

// Stop halts ticking and disposes the session. Later frames report
// ErrStopped.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		d.session.Close()
	})
}

// Stopped reports whether Stop has been called.
func (d *Driver) Stopped() bool { return d.stopped.Load() }
