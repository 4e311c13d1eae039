package supervisor

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/charliek/shoreman/internal/constants"
	"github.com/charliek/shoreman/internal/domain"
	"github.com/charliek/shoreman/internal/events"
)

// Lines yields the lines read from r until the stream closes.
// A read error ends the sequence and is passed to onErr; the rest of the
// stream is then discarded so the writer never blocks on a full pipe.
func Lines(r io.Reader, onErr func(error)) iter.Seq[string] {
	return func(yield func(string) bool) {
		scanner := bufio.NewScanner(r)
		// Increase buffer size for long lines
		scanner.Buffer(make([]byte, constants.ScannerBufferSize), constants.ScannerMaxBufferSize)

		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if onErr != nil {
				onErr(err)
			}
			_, _ = io.Copy(io.Discard, r)
		}
	}
}

// trackedProcess is a spawned command owned by the Supervisor's tracking map
type trackedProcess struct {
	info    domain.RunningProcess
	command string
	proc    Process

	// outputWg tracks completion of output reader goroutines
	outputWg sync.WaitGroup
}

// readOutput forwards every line of one stream to the sink
func (s *Supervisor) readOutput(tp *trackedProcess, r io.Reader, stream domain.Stream) {
	defer tp.outputWg.Done()
	if r == nil {
		return
	}

	onErr := func(err error) {
		s.sink.Logf(tp.info.Name, tp.info.Index, "output reader error: %v", err)
	}

	for line := range Lines(r, onErr) {
		s.sink.Write(domain.LogEntry{
			Timestamp: time.Now(),
			Process:   tp.info.Name,
			Index:     tp.info.Index,
			Stream:    stream,
			Line:      line,
		})
	}
}

// monitor waits for the process to exit, untracks it, and logs how it ended
func (s *Supervisor) monitor(tp *trackedProcess) {
	defer s.wg.Done()

	err := tp.proc.Wait()

	// The process is gone; drop it before anything else so the map only
	// ever holds live processes
	s.untrack(tp.info.PID)

	// Wait for output readers to finish draining pipes with a timeout.
	// Grandchildren may hold the pipes open; don't block forever on them.
	outputDone := make(chan struct{})
	go func() {
		tp.outputWg.Wait()
		close(outputDone)
	}()

	select {
	case <-outputDone:
		// Output readers finished normally
	case <-time.After(s.drainTimeout):
		s.logger.Debug("output capture timed out", "process", tp.info.Name, "pid", tp.info.PID)
		s.sink.Logf(tp.info.Name, tp.info.Index, "output capture timed out (some logs may be missing)")
	}

	if cerr := tp.proc.Close(); cerr != nil {
		s.logger.Debug("closing output pipes", "process", tp.info.Name, "error", cerr)
	}

	status := exitStatus(err)
	s.sink.Logf(tp.info.Name, tp.info.Index, "%s", status.String())

	events.Publish(s.bus, events.ProcessExited{
		Name:      tp.info.Name,
		PID:       tp.info.PID,
		Status:    status,
		Uptime:    time.Since(tp.info.StartedAt),
		Timestamp: time.Now(),
	})

	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
	s.checkIdle()
}

// exitCoder is satisfied by errors that carry a process exit code
type exitCoder interface {
	ExitCode() int
}

// exitStatus converts the result of Wait into an ExitStatus.
// A process killed by a signal reports the signal rather than a code.
func exitStatus(err error) domain.ExitStatus {
	if err == nil {
		return domain.ExitStatus{Code: 0}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return domain.ExitStatus{Signal: status.Signal()}
			}
			return domain.ExitStatus{Code: status.ExitStatus()}
		}
		return domain.ExitStatus{Code: exitErr.ExitCode()}
	}

	var coder exitCoder
	if errors.As(err, &coder) {
		return domain.ExitStatus{Code: coder.ExitCode()}
	}

	// Wait failed without an exit status
	return domain.ExitStatus{Code: 1}
}
