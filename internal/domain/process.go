package domain

import (
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// CommandSpec is one named entry of the Procfile
type CommandSpec struct {
	Name    string
	Command string
}

// RunningProcess describes a spawned command that has not exited yet
type RunningProcess struct {
	PID       int
	Name      string
	Index     int
	StartedAt time.Time
}

// ExitStatus describes how a command ended.
// Exactly one of Err, Signal or Code is meaningful, checked in that order.
type ExitStatus struct {
	Code   int
	Signal syscall.Signal
	Err    error
}

// Signaled reports whether the process was terminated by a signal
func (s ExitStatus) Signaled() bool {
	return s.Err == nil && s.Signal != 0
}

// String renders the status the way it appears in the log
func (s ExitStatus) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("Process failed to start: %v", s.Err)
	case s.Signal != 0:
		return "Process terminated by signal " + SignalName(s.Signal)
	default:
		return fmt.Sprintf("Process exited with code %d", s.Code)
	}
}

// SignalName returns the conventional name of sig, e.g. SIGTERM
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}
