package cpu

import "sync"

// band is an inclusive-exclusive row range handed to one worker.
type band struct{ y0, y1 int }

// splitRows divides height rows into at most workers contiguous bands.
func splitRows(height, workers int) []band {
	if workers < 1 {
		workers = 1
	}
	if workers > height {
		workers = height
	}
	rowsPer := (height + workers - 1) / workers
	bands := make([]band, 0, workers)
	for y := 0; y < height; y += rowsPer {
		end := y + rowsPer
		if end > height {
			end = height
		}
		bands = append(bands, band{y, end})
	}
	return bands
}

// rowPool runs a row kernel across persistent worker goroutines. Each call
// to run publishes one job, wakes every worker, and waits until all bands
// are done, so passes never overlap.
type rowPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	workers int
	started bool
	closed  bool

	step    int
	pending int
	bands   []band
	job     func(y0, y1 int)
}

func newRowPool(workers int) *rowPool {
	if workers < 1 {
		workers = 1
	}
	p := &rowPool{workers: workers}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *rowPool) start() {
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		go p.loop(i)
	}
}

func (p *rowPool) loop(index int) {
	lastStep := 0
	p.mu.Lock()
	for {
		for p.step == lastStep && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		lastStep = p.step
		var (
			b   band
			job = p.job
			ok  = index < len(p.bands)
		)
		if ok {
			b = p.bands[index]
		}
		p.mu.Unlock()

		if ok {
			job(b.y0, b.y1)
		}

		p.mu.Lock()
		p.pending--
		if p.pending == 0 {
			p.cond.Broadcast()
		}
	}
}

// run executes fn over [0,height) and returns once every band has finished.
// Small grids run inline on the caller's goroutine.
func (p *rowPool) run(height int, fn func(y0, y1 int)) {
	if p.workers == 1 || height < minParallelRows {
		fn(0, height)
		return
	}
	p.mu.Lock()
	p.start()
	p.bands = splitRows(height, p.workers)
	p.job = fn
	p.pending = p.workers
	p.step++
	p.cond.Broadcast()
	for p.pending > 0 {
		p.cond.Wait()
	}
	p.job = nil
	p.mu.Unlock()
}

func (p *rowPool) close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

const minParallelRows = 32
