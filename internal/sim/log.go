package sim

import (
	"log/slog"

	"github.com/Distortions81/stable-fluids/internal/logging"
)

// SetLogger routes diagnostics from every simulation package to l.
// Passing nil silences them again.
func SetLogger(l *slog.Logger) { logging.SetLogger(l) }

func logger() *slog.Logger { return logging.Logger() }
