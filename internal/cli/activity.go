package cli

import (
	"log/slog"
	"time"

	"github.com/charliek/shoreman/internal/events"
)

// logActivity mirrors process lifecycle events into the diagnostics logger
// until the returned stop function is called
func logActivity(bus *events.Bus, logger *slog.Logger) (stop func()) {
	unsubStarted := events.Subscribe(bus, func(e events.ProcessStarted) {
		logger.Debug("process started",
			"process", e.Process.Name,
			"pid", e.Process.PID,
			"command", e.Command)
	})

	unsubExited := events.Subscribe(bus, func(e events.ProcessExited) {
		logger.Debug("process exited",
			"process", e.Name,
			"pid", e.PID,
			"status", e.Status.String(),
			"uptime", e.Uptime.Round(time.Millisecond))
	})

	return func() {
		unsubStarted()
		unsubExited()
	}
}
