package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/charliek/shoreman/internal/domain"
)

// fakeRunner hands out fakeProcesses with sequential PIDs
type fakeRunner struct {
	mu      sync.Mutex
	nextPID int
	fail    map[string]error
	procs   map[string]*fakeProcess
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		nextPID: 1000,
		fail:    make(map[string]error),
		procs:   make(map[string]*fakeProcess),
	}
}

func (r *fakeRunner) Start(_ context.Context, spec domain.CommandSpec) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fail[spec.Name]; err != nil {
		return nil, err
	}

	r.nextPID++
	p := newFakeProcess(r.nextPID)
	r.procs[spec.Name] = p
	return p, nil
}

func (r *fakeRunner) proc(name string) *fakeProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[name]
}

// fakeProcess stays alive until exit is called or it is signalled
type fakeProcess struct {
	pid int

	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	mu      sync.Mutex
	exited  bool
	signals []os.Signal
	waitErr error
	done    chan struct{}
}

func newFakeProcess(pid int) *fakeProcess {
	p := &fakeProcess{pid: pid, done: make(chan struct{})}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *fakeProcess) PID() int          { return p.pid }
func (p *fakeProcess) Stdout() io.Reader { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader { return p.stderrR }

func (p *fakeProcess) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return errors.New("os: process already finished")
	}
	p.signals = append(p.signals, sig)
	p.mu.Unlock()

	p.exit(codeErr(143))
	return nil
}

func (p *fakeProcess) Close() error {
	p.stdoutR.Close()
	p.stderrR.Close()
	return nil
}

// say writes a line to stdout; it blocks until the supervisor reads it
func (p *fakeProcess) say(line string) {
	p.stdoutW.Write([]byte(line + "\n"))
}

// complain writes a line to stderr
func (p *fakeProcess) complain(line string) {
	p.stderrW.Write([]byte(line + "\n"))
}

// exit ends the process with the given wait error
func (p *fakeProcess) exit(err error) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.waitErr = err
	p.mu.Unlock()

	p.stdoutW.Close()
	p.stderrW.Close()
	close(p.done)
}

func (p *fakeProcess) receivedSignals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}
