package main

import "flag"

// Command-line flags for the window host. Simulation parameters are
// registered separately from the config package.
var (
	// backendFlag selects the kernel executor.
	backendFlag = flag.String("backend", "auto", "kernel executor: auto, cpu, or opencl")

	// workersFlag sets the CPU executor's row-band goroutines.
	workersFlag = flag.Int("workers", 0, "CPU executor worker goroutines (0 = NumCPU)")

	// widthFlag and heightFlag set the initial window size.
	widthFlag  = flag.Int("width", 1024, "initial window width in pixels")
	heightFlag = flag.Int("height", 768, "initial window height in pixels")

	// configFlag names a JSON file overlaid on the defaults before flags.
	configFlag = flag.String("config", "", "JSON configuration file; explicit flags take precedence")

	// debugFlag enables the FPS and simulation overlay plus debug logging.
	debugFlag = flag.Bool("debug", false, "show FPS and simulation overlay and log simulation diagnostics")

	// splatsFlag queues a burst of random splats on the first frame.
	splatsFlag = flag.Int("splats", 0, "random splats to queue at startup (Space queues more)")

	// showPointerFlag draws a marker under each active pointer.
	showPointerFlag = flag.Bool("show-pointer", false, "draw a marker at each active pointer")

	cpuProfileFlag = flag.String("cpuprofile", "", "write a CPU profile to this file until exit")
	memProfileFlag = flag.String("memprofile", "", "write a heap profile to this file at exit")
)
