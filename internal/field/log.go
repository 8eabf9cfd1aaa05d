package field

import (
	"log/slog"

	"github.com/Distortions81/stable-fluids/internal/logging"
)

func logger() *slog.Logger { return logging.Logger() }
