package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charliek/shoreman/internal/events"
)

// shutdownSignals are the OS signals that request a shutdown
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// WatchSignals turns SIGINT and SIGTERM into ShutdownRequested events until
// ctx is done or the returned stop function is called
func WatchSignals(ctx context.Context, bus *events.Bus, stderr io.Writer) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case sig := <-sigCh:
				fmt.Fprintf(stderr, "\n%s received\n", signalString(sig))
				events.Publish(bus, events.ShutdownRequested{
					Signal:    sig,
					Timestamp: time.Now(),
				})
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		cancel()
		<-done
	}
}
