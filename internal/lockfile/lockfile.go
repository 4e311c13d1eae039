// Package lockfile enforces a single live supervisor per lock path.
//
// The lock is a plain text file holding the owner's PID. A file whose PID no
// longer answers a signal-0 probe is stale and is replaced.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charliek/shoreman/internal/domain"
	"golang.org/x/sys/unix"
)

// Guard manages the lock file at a fixed path.
//
// Guard is not safe for concurrent use. Callers must ensure that
// Acquire and Release are not called concurrently on the same instance.
type Guard struct {
	path  string
	pid   int
	owned bool

	// alive probes a PID; swapped in tests
	alive func(pid int) bool
}

// New creates a Guard for the given path
func New(path string) *Guard {
	return &Guard{
		path:  path,
		pid:   os.Getpid(),
		alive: ProcessExists,
	}
}

// Path returns the lock file path
func (g *Guard) Path() string {
	return g.path
}

// Check inspects an existing lock file without claiming it.
// It returns ErrAlreadyRunning when the recorded PID is alive, in which case
// nothing is touched. A stale or unreadable lock is removed.
func (g *Guard) Check() error {
	pid, err := ReadPID(g.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		// Garbage in the file cannot name a live owner
		return g.removeStale()
	}

	if g.alive(pid) {
		return fmt.Errorf("%w (pid %d)", domain.ErrAlreadyRunning, pid)
	}

	return g.removeStale()
}

// Acquire runs Check and then writes a fresh lock holding this process's PID
func (g *Guard) Acquire() error {
	if g.owned {
		return nil
	}

	if err := g.Check(); err != nil {
		return err
	}

	// O_EXCL makes a racing second instance fail instead of overwriting us
	f, err := os.OpenFile(g.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w (lock file %s appeared concurrently)", domain.ErrAlreadyRunning, g.path)
		}
		return fmt.Errorf("creating lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", g.pid); err != nil {
		f.Close()
		os.Remove(g.path)
		return fmt.Errorf("writing PID: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(g.path)
		return fmt.Errorf("closing lock file: %w", err)
	}

	g.owned = true
	return nil
}

// Release removes the lock file if this Guard wrote it and it still names
// this process. Release is idempotent.
func (g *Guard) Release() error {
	if !g.owned {
		return nil
	}
	g.owned = false

	pid, err := ReadPID(g.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
	} else if pid != g.pid {
		// Someone else replaced the lock; it is theirs now
		return nil
	}

	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}

	return nil
}

func (g *Guard) removeStale() error {
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale lock file: %w", err)
	}
	return nil
}

// ReadPID reads the PID from a lock file
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("parsing PID: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("parsing PID: invalid value %d", pid)
	}

	return pid, nil
}

// ProcessExists checks if a process with the given PID exists.
// EPERM means the process exists but belongs to someone else.
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
