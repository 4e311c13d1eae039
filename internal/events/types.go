package events

import (
	"os"
	"time"

	"github.com/charliek/shoreman/internal/domain"
)

// Event type constants for kelindar/event.
const (
	TypeShutdownRequested uint32 = iota + 1
	TypeProcessStarted
	TypeProcessExited
	TypeAllExited
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ShutdownRequested asks the shutdown coordinator to stop everything.
// Signal is nil when the request did not come from the OS.
type ShutdownRequested struct {
	Signal    os.Signal
	Timestamp time.Time
}

// Type returns the event type identifier for ShutdownRequested.
func (e ShutdownRequested) Type() uint32 { return TypeShutdownRequested }

// ProcessStarted is published once a command has been spawned and tracked.
type ProcessStarted struct {
	Process   domain.RunningProcess
	Command   string
	Timestamp time.Time
}

// Type returns the event type identifier for ProcessStarted.
func (e ProcessStarted) Type() uint32 { return TypeProcessStarted }

// ProcessExited is published after a command's tracking entry is removed.
// PID and Uptime are zero when the command never started.
type ProcessExited struct {
	Name      string
	PID       int
	Status    domain.ExitStatus
	Uptime    time.Duration
	Timestamp time.Time
}

// Type returns the event type identifier for ProcessExited.
func (e ProcessExited) Type() uint32 { return TypeProcessExited }

// AllExited is published when the last tracked command exits on its own.
type AllExited struct {
	Timestamp time.Time
}

// Type returns the event type identifier for AllExited.
func (e AllExited) Type() uint32 { return TypeAllExited }
