package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/charliek/shoreman/internal/constants"
	"github.com/charliek/shoreman/internal/domain"
	"github.com/charliek/shoreman/internal/events"
	"github.com/charliek/shoreman/internal/logs"
)

// Config holds the collaborators of a Supervisor
type Config struct {
	Specs []domain.CommandSpec
	Sink  *logs.Sink
	Bus   *events.Bus

	// Runner spawns commands; defaults to an ExecRunner
	Runner ProcessRunner
	// Logger receives supervisor diagnostics; defaults to discarding them
	Logger *slog.Logger
	// DrainTimeout bounds output draining after a process exits
	DrainTimeout time.Duration
}

// Supervisor spawns the configured commands and tracks them until they exit.
// It owns the tracking map; nothing else mutates it.
type Supervisor struct {
	mu sync.Mutex

	// specs is the ordered, immutable command list
	specs []domain.CommandSpec
	// runner handles the actual process execution (can be mocked for testing)
	runner ProcessRunner
	// sink receives command output and supervisor lines
	sink *logs.Sink
	// bus carries lifecycle events to the shutdown coordinator
	bus    *events.Bus
	logger *slog.Logger

	// processes maps PIDs to live processes
	processes map[int]*trackedProcess
	// launching is set when Launch is first called
	launching bool
	// launched is set once every spec has been spawned
	launched bool
	// pending counts monitors that have not yet reported their exit
	pending int

	drainTimeout time.Duration

	// wg tracks monitor goroutines
	wg sync.WaitGroup

	idleOnce sync.Once
}

// New creates a new supervisor
func New(cfg Config) *Supervisor {
	runner := cfg.Runner
	if runner == nil {
		runner = NewExecRunner()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = constants.OutputDrainTimeout
	}
	sink := cfg.Sink
	if sink == nil {
		sink = logs.NewSink(nil, nil)
	}
	bus := cfg.Bus
	if bus == nil {
		bus = events.New()
	}

	specs := make([]domain.CommandSpec, len(cfg.Specs))
	copy(specs, cfg.Specs)

	return &Supervisor{
		specs:        specs,
		runner:       runner,
		sink:         sink,
		bus:          bus,
		logger:       logger,
		processes:    make(map[int]*trackedProcess),
		drainTimeout: drain,
	}
}

// Launch spawns every command in order. A command that fails to spawn is
// reported through the normal exit path and does not stop the others.
func (s *Supervisor) Launch(ctx context.Context) error {
	s.mu.Lock()
	if s.launching {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already launched")
	}
	s.launching = true
	s.mu.Unlock()

	for i, spec := range s.specs {
		s.launch(ctx, i, spec)
	}

	s.mu.Lock()
	s.launched = true
	s.mu.Unlock()

	// Everything may already be gone, e.g. when every spawn failed
	s.checkIdle()
	return nil
}

func (s *Supervisor) launch(ctx context.Context, index int, spec domain.CommandSpec) {
	proc, err := s.runner.Start(ctx, spec)
	if err != nil {
		status := domain.ExitStatus{Err: err}
		s.logger.Debug("spawn failed", "process", spec.Name, "error", err)
		s.sink.Logf(spec.Name, index, "%s", status.String())
		events.Publish(s.bus, events.ProcessExited{
			Name:      spec.Name,
			Status:    status,
			Timestamp: time.Now(),
		})
		return
	}

	tp := &trackedProcess{
		info: domain.RunningProcess{
			PID:       proc.PID(),
			Name:      spec.Name,
			Index:     index,
			StartedAt: time.Now(),
		},
		command: spec.Command,
		proc:    proc,
	}

	s.mu.Lock()
	s.processes[tp.info.PID] = tp
	s.pending++
	s.mu.Unlock()

	s.sink.Logf(spec.Name, index, "'%s' started with pid %d", spec.Command, tp.info.PID)

	events.Publish(s.bus, events.ProcessStarted{
		Process:   tp.info,
		Command:   spec.Command,
		Timestamp: tp.info.StartedAt,
	})

	// Start output readers with WaitGroup tracking
	tp.outputWg.Add(2)
	go s.readOutput(tp, proc.Stdout(), domain.StreamStdout)
	go s.readOutput(tp, proc.Stderr(), domain.StreamStderr)

	s.wg.Add(1)
	go s.monitor(tp)
}

// untrack removes a process from the tracking map
func (s *Supervisor) untrack(pid int) {
	s.mu.Lock()
	delete(s.processes, pid)
	s.mu.Unlock()
}

// checkIdle publishes AllExited once launch is complete and every exit has
// been reported
func (s *Supervisor) checkIdle() {
	s.mu.Lock()
	empty := s.launched && s.pending == 0
	s.mu.Unlock()

	if !empty {
		return
	}

	s.idleOnce.Do(func() {
		s.logger.Info("all processes exited")
		events.Publish(s.bus, events.AllExited{Timestamp: time.Now()})
	})
}

// SignalAll sends sig to every tracked process and returns how many were
// signalled. Delivery failures (typically an already exited process) are
// suppressed.
func (s *Supervisor) SignalAll(sig os.Signal) int {
	s.mu.Lock()
	targets := make([]*trackedProcess, 0, len(s.processes))
	for _, tp := range s.processes {
		targets = append(targets, tp)
	}
	s.mu.Unlock()

	sent := 0
	for _, tp := range targets {
		if err := tp.proc.Signal(sig); err != nil {
			s.logger.Debug("signal not delivered", "process", tp.info.Name, "pid", tp.info.PID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Tracked returns the number of live processes
func (s *Supervisor) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processes)
}

// Processes returns the live processes in Procfile order
func (s *Supervisor) Processes() []domain.RunningProcess {
	s.mu.Lock()
	result := make([]domain.RunningProcess, 0, len(s.processes))
	for _, tp := range s.processes {
		result = append(result, tp.info)
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})
	return result
}

// Wait blocks until every monitor has finished or ctx is done
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
