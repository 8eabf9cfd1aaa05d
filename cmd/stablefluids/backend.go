package main

import (
	"fmt"
	"log"

	"github.com/Distortions81/stable-fluids/internal/backend/cpu"
	"github.com/Distortions81/stable-fluids/internal/backend/opencl"
	"github.com/Distortions81/stable-fluids/internal/kernel"
)

// newExecutor builds the executor named by the -backend flag. "auto"
// prefers OpenCL and falls back to the CPU executor.
func newExecutor(name string, workers int) (kernel.Executor, error) {
	switch name {
	case "cpu":
		return cpu.New(cpu.Options{Workers: workers}), nil
	case "opencl":
		exec, err := opencl.New()
		if err != nil {
			return nil, fmt.Errorf("OpenCL initialization failed: %w", err)
		}
		log.Printf("OpenCL executor enabled (device: %s)", exec.DeviceName())
		return exec, nil
	case "auto":
		if opencl.Available {
			exec, err := opencl.New()
			if err == nil {
				log.Printf("OpenCL executor enabled (device: %s)", exec.DeviceName())
				return exec, nil
			}
			log.Printf("OpenCL unavailable, using CPU executor: %v", err)
		}
		return cpu.New(cpu.Options{Workers: workers}), nil
	}
	return nil, fmt.Errorf("unknown backend %q (want auto, cpu, or opencl)", name)
}
