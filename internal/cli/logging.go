package cli

import (
	"io"
	"log/slog"
)

// newLogger returns the diagnostics logger. Warnings and errors are always
// shown; verbose adds debug and info output.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// moduleLogger tags diagnostics with the component that produced them
func moduleLogger(logger *slog.Logger, module string) *slog.Logger {
	return logger.With("module", module)
}
