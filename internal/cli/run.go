package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charliek/shoreman/internal/config"
	"github.com/charliek/shoreman/internal/constants"
	"github.com/charliek/shoreman/internal/domain"
	"github.com/charliek/shoreman/internal/events"
	"github.com/charliek/shoreman/internal/lockfile"
	"github.com/charliek/shoreman/internal/logs"
	"github.com/charliek/shoreman/internal/supervisor"
	"github.com/muesli/termenv"
)

// alreadyRunningMessage is printed when another instance holds the lock
const alreadyRunningMessage = "error: services are already running. that's good, we autoreload. no need to do anything"

// Options holds everything a run needs
type Options struct {
	ProcfilePath string
	EnvFilePath  string
	PIDFile      string
	LogFile      string
	PrevLogFile  string

	Stdout io.Writer
	Stderr io.Writer

	// Grace is how long to linger after signalling the commands on shutdown
	Grace   time.Duration
	Verbose bool
	// NoColor disables console colors even on a terminal
	NoColor bool
}

// DefaultOptions returns options for a run in the current directory
func DefaultOptions() Options {
	return Options{
		ProcfilePath: constants.DefaultProcfile,
		EnvFilePath:  constants.DefaultEnvFile,
		PIDFile:      constants.PIDFile,
		LogFile:      constants.LogFile,
		PrevLogFile:  constants.PrevLogFile,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Grace:        constants.ShutdownGrace,
	}
}

// Run supervises the Procfile's commands until a shutdown signal arrives,
// every command has exited, or ctx is done. It returns the process exit code.
func Run(ctx context.Context, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	logger := newLogger(opts.Stderr, opts.Verbose)

	// Fatal checks come before the lock is written so they never leave one
	// behind
	guard := lockfile.New(opts.PIDFile)
	if err := guard.Check(); err != nil {
		return reportStartupError(opts.Stderr, opts.ProcfilePath, err)
	}

	specs, err := config.LoadProcfile(opts.ProcfilePath)
	if err != nil {
		return reportStartupError(opts.Stderr, opts.ProcfilePath, err)
	}

	if err := guard.Acquire(); err != nil {
		return reportStartupError(opts.Stderr, opts.ProcfilePath, err)
	}
	defer guard.Release()
	logger.Debug("lock acquired", "path", guard.Path())

	sinkCfg := logs.DefaultSinkConfig()
	sinkCfg.Console = opts.Stdout
	sinkCfg.Path = opts.LogFile
	sinkCfg.BackupPath = opts.PrevLogFile
	sink, err := logs.Open(sinkCfg)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
		return 1
	}
	defer sink.Close()
	if opts.NoColor {
		sink.SetColorProfile(termenv.Ascii)
	}

	applied, err := config.LoadAndApplyEnv(opts.EnvFilePath)
	if err != nil {
		logger.Warn("env file not applied", "path", opts.EnvFilePath, "error", err)
	} else if len(applied) > 0 {
		logger.Debug("applied env file", "path", opts.EnvFilePath, "keys", strings.Join(applied, ","))
	}

	bus := events.New()
	defer bus.Close()

	stopActivity := logActivity(bus, moduleLogger(logger, "events"))
	defer stopActivity()

	sup := supervisor.New(supervisor.Config{
		Specs:  specs,
		Sink:   sink,
		Bus:    bus,
		Logger: moduleLogger(logger, "supervisor"),
	})

	coord := supervisor.NewCoordinator(supervisor.CoordinatorConfig{
		Supervisor: sup,
		Sink:       sink,
		Lock:       guard,
		Grace:      opts.Grace,
		Stderr:     opts.Stderr,
		Logger:     moduleLogger(logger, "shutdown"),
	})
	coord.Listen(bus)
	defer coord.Stop()

	stopSignals := supervisor.WatchSignals(ctx, bus, opts.Stderr)
	defer stopSignals()

	logger.Debug("launching", "procfile", opts.ProcfilePath, "commands", len(specs))
	if err := sup.Launch(ctx); err != nil {
		fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
		return 1
	}
	logger.Debug("launched", "running", sup.Tracked())

	select {
	case <-coord.Done():
	case <-ctx.Done():
		coord.Shutdown(nil)
		<-coord.Done()
	}

	// Let monitors report their exits before the bus closes
	waitCtx, cancel := context.WithTimeout(context.Background(), constants.ExitWaitTimeout)
	defer cancel()
	if err := sup.Wait(waitCtx); err != nil {
		logger.Debug("exiting with commands still running", "running", sup.Tracked())
	}
	logger.Debug("supervisor stopped", "state", string(coord.State()))

	return 0
}

// reportStartupError prints the operator message for a fatal startup
// condition and returns the exit code, which is always 1
func reportStartupError(w io.Writer, procfile string, err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		fmt.Fprintln(w, alreadyRunningMessage)
	case errors.Is(err, domain.ErrProcfileNotFound):
		fmt.Fprintf(w, "Error: %s not found\n", procfile)
	case errors.Is(err, domain.ErrNoCommands):
		fmt.Fprintf(w, "No commands found in %s\n", procfile)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return 1
}
