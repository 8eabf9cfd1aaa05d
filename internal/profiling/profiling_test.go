package profiling

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStartStopWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	cpuPath := filepath.Join(dir, "cpu.pprof")
	heapPath := filepath.Join(dir, "heap.pprof")

	p, err := Start(cpuPath, heapPath)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sum := 0
	for i := 0; i < 1e6; i++ {
		sum += i
	}
	_ = sum
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	for _, path := range []string{cpuPath, heapPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("profile %s missing: %v", filepath.Base(path), err)
		}
		if info.Size() == 0 {
			t.Errorf("profile %s is empty", filepath.Base(path))
		}
	}
}

func TestStartWithoutPaths(t *testing.T) {
	p, err := Start("", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestStartBadPath(t *testing.T) {
	if _, err := Start(filepath.Join(t.TempDir(), "missing", "cpu.pprof"), ""); err == nil {
		t.Error("Start() succeeded with an unwritable path")
	}
}

func TestHeapFailureReported(t *testing.T) {
	p, err := Start("", filepath.Join(t.TempDir(), "missing", "heap.pprof"))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err == nil {
		t.Error("Stop() hid a failed heap profile write")
	}
}
