// Command stablefluids opens a window running the stable-fluids dye
// simulation. Moving the mouse or dragging a finger stirs the fluid.
package main

import (
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/Distortions81/stable-fluids/internal/config"
	"github.com/Distortions81/stable-fluids/internal/profiling"
	"github.com/Distortions81/stable-fluids/internal/sim"
)

func main() {
	cli := config.Default()
	cli.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("stablefluids: %v", err)
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
	if *debugFlag {
		sim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	prof, err := profiling.Start(*cpuProfileFlag, *memProfileFlag)
	if err != nil {
		return err
	}
	defer func() {
		if err := prof.Stop(); err != nil {
			log.Printf("Profiling: %v", err)
		}
	}()
	if *cpuProfileFlag != "" {
		log.Printf("Writing CPU profile to %s", *cpuProfileFlag)
	}

	exec, err := newExecutor(*backendFlag, *workersFlag)
	if err != nil {
		return err
	}
	g, err := newGame(cfg, exec, *widthFlag, *heightFlag)
	if err != nil {
		if c, ok := exec.(interface{ Close() }); ok {
			c.Close()
		}
		return err
	}
	defer g.driver.Stop()

	ebiten.SetWindowSize(*widthFlag, *heightFlag)
	ebiten.SetWindowTitle("Stable Fluids")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}
