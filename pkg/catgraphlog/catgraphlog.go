// Package catgraphlog configures the structured logger used across catgraph.
package catgraphlog

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Default is the fallback logger used when a caller does not supply its own
// *slog.Logger to Params.
var Default *slog.Logger

// New builds a tint-backed slog.Logger writing colored, leveled lines to
// stderr. The level floor is Debug; quiet=true raises it to Warn, so
// warnings and errors still surface.
func New(quiet bool) *slog.Logger {
	level := slog.LevelDebug
	if quiet {
		level = slog.LevelWarn
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	})

	return slog.New(handler)
}

func init() {
	Default = New(false)
}
