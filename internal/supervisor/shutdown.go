package supervisor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/charliek/shoreman/internal/constants"
	"github.com/charliek/shoreman/internal/domain"
	"github.com/charliek/shoreman/internal/events"
	"github.com/charliek/shoreman/internal/logs"
)

// State is a shutdown coordinator state
type State string

const (
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
	StateExited       State = "exited"
)

// Releaser releases the single-instance lock
type Releaser interface {
	Release() error
}

// CoordinatorConfig holds the collaborators of a Coordinator
type CoordinatorConfig struct {
	Supervisor *Supervisor
	Sink       *logs.Sink
	Lock       Releaser
	// Grace is how long to linger after signalling the children;
	// the CLI uses constants.ShutdownGrace
	Grace time.Duration
	// Stderr receives operator-facing shutdown messages
	Stderr io.Writer
	Logger *slog.Logger
}

// Coordinator drives RUNNING -> SHUTTING_DOWN -> EXITED.
// It is the only place that decides what a shutdown does.
type Coordinator struct {
	mu    sync.Mutex
	state State

	sup    *Supervisor
	sink   *logs.Sink
	lock   Releaser
	grace  time.Duration
	stderr io.Writer
	logger *slog.Logger

	done   chan struct{}
	unsubs []func()
}

// NewCoordinator creates a coordinator in the running state
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	grace := cfg.Grace
	if grace < 0 {
		grace = 0
	}

	return &Coordinator{
		state:  StateRunning,
		sup:    cfg.Supervisor,
		sink:   cfg.Sink,
		lock:   cfg.Lock,
		grace:  grace,
		stderr: stderr,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Listen subscribes the coordinator to shutdown requests and to the
// all-processes-exited notification
func (c *Coordinator) Listen(bus *events.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unsubs = append(c.unsubs,
		events.Subscribe(bus, func(e events.ShutdownRequested) {
			c.Shutdown(e.Signal)
		}),
		events.Subscribe(bus, func(events.AllExited) {
			c.Finish()
		}),
	)
}

// Shutdown handles a shutdown request. The first request signals every
// tracked process, releases the lock, closes the log file and exits after the
// grace delay. Later requests are only logged. It reports whether this call
// started the shutdown.
func (c *Coordinator) Shutdown(sig os.Signal) bool {
	if !c.begin(sig) {
		return false
	}

	fmt.Fprintln(c.stderr, "sending SIGTERM to all processes")
	if c.sink != nil {
		c.sink.Banner(constants.ShutdownBanner)
	}

	if c.sup != nil {
		for _, p := range c.sup.Processes() {
			c.logger.Debug("terminating", "process", p.Name, "pid", p.PID)
		}
		n := c.sup.SignalAll(syscall.SIGTERM)
		c.logger.Debug("signalled processes", "count", n)
	}

	c.release()

	go func() {
		if c.grace > 0 {
			time.Sleep(c.grace)
		}
		c.exit()
	}()
	return true
}

// Finish completes without a grace delay once every child has exited on its
// own. It is a no-op if a shutdown is already under way.
func (c *Coordinator) Finish() bool {
	if !c.begin(nil) {
		return false
	}

	c.release()
	c.exit()
	return true
}

// begin performs the RUNNING -> SHUTTING_DOWN transition
func (c *Coordinator) begin(sig os.Signal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		c.logger.Debug("shutdown already in progress", "state", string(c.state), "signal", signalString(sig))
		return false
	}

	c.state = StateShuttingDown
	c.logger.Debug("shutting down", "signal", signalString(sig))
	return true
}

// release drops the lock and closes the log file
func (c *Coordinator) release() {
	if c.lock != nil {
		if err := c.lock.Release(); err != nil {
			c.logger.Warn("releasing lock file", "error", err)
		}
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			c.logger.Warn("closing log file", "error", err)
		}
	}
}

// exit performs the SHUTTING_DOWN -> EXITED transition
func (c *Coordinator) exit() {
	c.mu.Lock()
	c.state = StateExited
	c.mu.Unlock()

	close(c.done)
}

// Stop unsubscribes from the bus. Call it outside of event handlers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// State returns the current coordinator state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the coordinator reaches EXITED
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func signalString(sig os.Signal) string {
	if sig == nil {
		return "none"
	}
	if s, ok := sig.(syscall.Signal); ok {
		return domain.SignalName(s)
	}
	return sig.String()
}
