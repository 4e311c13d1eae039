// Package supervisor spawns the Procfile commands, tracks them until they
// exit and coordinates shutdown.
//
// # Security Model
//
// Commands are executed via "sh -c" to support shell features like pipes,
// redirects, and variable expansion. This means a Procfile has the same
// trust level as a Makefile - it can execute arbitrary code. Only use
// Procfiles from trusted sources.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/charliek/shoreman/internal/domain"
	"golang.org/x/sys/unix"
)

// ProcessRunner creates and starts processes
type ProcessRunner interface {
	Start(ctx context.Context, spec domain.CommandSpec) (Process, error)
}

// Process represents a running process
type Process interface {
	PID() int
	Wait() error
	Signal(sig os.Signal) error
	Stdout() io.Reader
	Stderr() io.Reader
	// Close releases the output pipes once they have been drained
	Close() error
}

// ExecRunner implements ProcessRunner using os/exec
type ExecRunner struct {
	// Shell runs each command line; defaults to sh
	Shell string
}

// NewExecRunner creates a new ExecRunner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Shell: "sh"}
}

// Start starts a new process. The child inherits the supervisor's
// environment and runs in its own process group.
//
// ctx only gates the spawn itself: cancelling it later does not touch the
// child, which is stopped with Signal instead.
func (r *ExecRunner) Start(ctx context.Context, spec domain.CommandSpec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.Command(shell, "-c", spec.Command)
	cmd.Env = os.Environ()

	// Set process group so we can signal all children
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	p := &execProcess{cmd: cmd}

	// Manual pipes: Wait does not close them, so readers can drain everything
	// the process group wrote even after the shell has exited
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	startErr := cmd.Start()

	// The child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()

	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("starting process: %w", startErr)
	}

	p.stdout = stdoutR
	p.stderr = stderrR
	return p, nil
}

// execProcess wraps exec.Cmd to implement Process interface
type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}

	sysSig, ok := sig.(syscall.Signal)
	if !ok {
		return p.cmd.Process.Signal(sig)
	}

	// Signal the entire process group
	pgid, err := unix.Getpgid(p.cmd.Process.Pid)
	if err != nil {
		// Fall back to signalling just the process
		return p.cmd.Process.Signal(sig)
	}

	return unix.Kill(-pgid, sysSig)
}

func (p *execProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *execProcess) Stderr() io.Reader {
	return p.stderr
}

func (p *execProcess) Close() error {
	return errors.Join(p.stdout.Close(), p.stderr.Close())
}
