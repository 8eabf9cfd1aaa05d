// Command fluidterm runs the stable-fluids simulation in a terminal, two
// simulation rows per character cell. Move the mouse to stir.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Distortions81/stable-fluids/internal/backend/cpu"
	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/profiling"
	"github.com/Distortions81/stable-fluids/internal/sim"
)

var (
	fpsFlag        = flag.Int("fps", 30, "frames per second")
	workersFlag    = flag.Int("workers", 0, "CPU executor worker goroutines (0 = NumCPU)")
	configFlag     = flag.String("config", "", "JSON configuration file; explicit flags take precedence")
	splatsFlag     = flag.Int("splats", 5, "random splats to queue at startup (Space queues more)")
	logFlag        = flag.String("log", "", "write debug logs to this file")
	cpuProfileFlag = flag.String("cpuprofile", "", "write a CPU profile to this file until exit")
	memProfileFlag = flag.String("memprofile", "", "write a heap profile to this file at exit")
)

func main() {
	cli := config.Default()
	cli.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fluidterm: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithFlags(*configFlag, flag.CommandLine)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *fpsFlag < 1 {
		return fmt.Errorf("fps %d must be >= 1", *fpsFlag)
	}
	if *logFlag != "" {
		f, err := os.Create(*logFlag)
		if err != nil {
			return err
		}
		defer f.Close()
		sim.SetLogger(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	prof, err := profiling.Start(*cpuProfileFlag, *memProfileFlag)
	if err != nil {
		return err
	}
	defer func() {
		if err := prof.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "fluidterm: %v\n", err)
		}
	}()

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}

	host, err := newHost(screen, cfg, cpu.New(cpu.Options{Workers: *workersFlag}))
	if err != nil {
		screen.Fini()
		return err
	}
	if *splatsFlag > 0 {
		host.session.QueueRandomSplats(*splatsFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return host.run(ctx, time.Second/time.Duration(*fpsFlag))
}
