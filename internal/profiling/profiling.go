// Package profiling writes pprof CPU and heap profiles for the command-line
// hosts.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Profiler owns the profiles started by Start.
type Profiler struct {
	cpu      *os.File
	heapPath string

	once sync.Once
	err  error
}

// Start begins CPU profiling into cpuPath and arranges for a heap profile
// to be written to heapPath on Stop. Either path may be empty.
func Start(cpuPath, heapPath string) (*Profiler, error) {
	p := &Profiler{heapPath: heapPath}
	if cpuPath == "" {
		return p, nil
	}
	f, err := os.Create(cpuPath)
	if err != nil {
		return nil, fmt.Errorf("cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("cpu profile: %w", err)
	}
	p.cpu = f
	return p, nil
}

// Stop ends CPU profiling and writes the heap profile. Later calls return
// the first call's result.
func (p *Profiler) Stop() error {
	p.once.Do(func() {
		var errs []error
		if p.cpu != nil {
			pprof.StopCPUProfile()
			if err := p.cpu.Close(); err != nil {
				errs = append(errs, fmt.Errorf("cpu profile: %w", err))
			}
		}
		if p.heapPath != "" {
			if err := writeHeap(p.heapPath); err != nil {
				errs = append(errs, fmt.Errorf("heap profile: %w", err))
			}
		}
		p.err = errors.Join(errs...)
	})
	return p.err
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	// Up-to-date allocation statistics.
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
