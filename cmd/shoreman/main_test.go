package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer collects a child's output while the test polls it
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type instance struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	stderr *lockedBuffer
	done   chan struct{}
	err    error
}

// buildBinary builds the shoreman binary and returns its path
func buildBinary(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)

	binary := filepath.Join(t.TempDir(), "shoreman")
	cmd := exec.Command("go", "build", "-o", binary, ".")
	cmd.Dir = wd
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build binary: %s", output)

	return binary
}

// skipShort skips the test if -short flag is provided
func skipShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// writeProcfile creates a working directory holding the given Procfile
func writeProcfile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Procfile"), []byte(content), 0644))
	return dir
}

func startShoreman(t *testing.T, binary, dir string, args ...string) *instance {
	t.Helper()

	inst := &instance{
		cmd:    exec.Command(binary, args...),
		stdout: &lockedBuffer{},
		stderr: &lockedBuffer{},
		done:   make(chan struct{}),
	}
	inst.cmd.Dir = dir
	inst.cmd.Stdout = inst.stdout
	inst.cmd.Stderr = inst.stderr

	require.NoError(t, inst.cmd.Start())
	go func() {
		inst.err = inst.cmd.Wait()
		close(inst.done)
	}()

	t.Cleanup(func() {
		select {
		case <-inst.done:
		default:
			inst.cmd.Process.Kill()
			<-inst.done
		}
	})
	return inst
}

// exitCode waits for the instance and returns its exit code
func (i *instance) exitCode(t *testing.T, timeout time.Duration) int {
	t.Helper()

	select {
	case <-i.done:
	case <-time.After(timeout):
		t.Fatalf("shoreman did not exit within %v\nstdout: %s\nstderr: %s", timeout, i.stdout, i.stderr)
	}

	var exitErr *exec.ExitError
	if errors.As(i.err, &exitErr) {
		return exitErr.ExitCode()
	}
	require.NoError(t, i.err)
	return 0
}

func (i *instance) waitForOutput(t *testing.T, pattern string) {
	t.Helper()
	re := regexp.MustCompile(pattern)
	require.Eventually(t, func() bool {
		return re.MatchString(i.stdout.String())
	}, 10*time.Second, 20*time.Millisecond, "stdout never matched %q", pattern)
}

// childPID extracts the PID logged for the named command
func (i *instance) childPID(t *testing.T, name string) int {
	t.Helper()
	re := regexp.MustCompile(regexp.QuoteMeta(name) + `\t\| '.*' started with pid (\d+)`)
	m := re.FindStringSubmatch(i.stdout.String())
	require.Len(t, m, 2)
	pid, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	return pid
}

func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func TestShoreman_ShutdownOnSignal(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)

	for _, sig := range []syscall.Signal{syscall.SIGINT, syscall.SIGTERM} {
		t.Run(sig.String(), func(t *testing.T) {
			dir := writeProcfile(t, "web: sleep 30\nworker: sleep 30\n")
			inst := startShoreman(t, binary, dir)

			inst.waitForOutput(t, `worker\t\| 'sleep 30' started with pid \d+`)
			webPID := inst.childPID(t, "web")
			workerPID := inst.childPID(t, "worker")

			lock, err := os.ReadFile(filepath.Join(dir, ".shoreman.pid"))
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(inst.cmd.Process.Pid)+"\n", string(lock))

			require.NoError(t, inst.cmd.Process.Signal(sig))
			assert.Equal(t, 0, inst.exitCode(t, 10*time.Second))

			stderr := inst.stderr.String()
			assert.Contains(t, stderr, "received")
			assert.Contains(t, stderr, "sending SIGTERM to all processes")

			assert.NoFileExists(t, filepath.Join(dir, ".shoreman.pid"))

			log, err := os.ReadFile(filepath.Join(dir, "dev.log"))
			require.NoError(t, err)
			assert.Contains(t, string(log), "SHOREMAN STARTED")
			assert.Contains(t, string(log), "PROCESS MANAGER SHUTTING DOWN")

			// Both children were terminated
			assert.Eventually(t, func() bool {
				return !alive(webPID) && !alive(workerPID)
			}, 5*time.Second, 20*time.Millisecond)
		})
	}
}

func TestShoreman_RepeatedSignals(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)

	dir := writeProcfile(t, "web: sleep 30\n")
	inst := startShoreman(t, binary, dir)
	inst.waitForOutput(t, `web\t\| 'sleep 30' started with pid \d+`)

	require.NoError(t, inst.cmd.Process.Signal(syscall.SIGINT))
	require.NoError(t, inst.cmd.Process.Signal(syscall.SIGINT))

	assert.Equal(t, 0, inst.exitCode(t, 10*time.Second))
	assert.NoFileExists(t, filepath.Join(dir, ".shoreman.pid"))

	log, err := os.ReadFile(filepath.Join(dir, "dev.log"))
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(log, []byte("PROCESS MANAGER SHUTTING DOWN")))
}

func TestShoreman_SecondInstanceRefused(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)

	dir := writeProcfile(t, "web: sleep 30\n")
	first := startShoreman(t, binary, dir)
	first.waitForOutput(t, `web\t\| 'sleep 30' started with pid \d+`)

	lockPath := filepath.Join(dir, ".shoreman.pid")
	lock, err := os.ReadFile(lockPath)
	require.NoError(t, err)

	second := startShoreman(t, binary, dir)
	assert.Equal(t, 1, second.exitCode(t, 10*time.Second))
	assert.Contains(t, second.stderr.String(), "error: services are already running")
	assert.Empty(t, second.stdout.String())

	// The first instance keeps its lock
	after, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, lock, after)
	assert.NoFileExists(t, filepath.Join(dir, "dev-prev.log"))

	require.NoError(t, first.cmd.Process.Signal(syscall.SIGTERM))
	assert.Equal(t, 0, first.exitCode(t, 10*time.Second))
}

func TestShoreman_ExitsWhenCommandsFinish(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)

	dir := writeProcfile(t, "web: echo hi\napi: echo bye\n")
	inst := startShoreman(t, binary, dir)

	assert.Equal(t, 0, inst.exitCode(t, 10*time.Second))
	assert.Contains(t, inst.stdout.String(), "web\t| hi")
	assert.Contains(t, inst.stdout.String(), "api\t| bye")
	assert.NoFileExists(t, filepath.Join(dir, ".shoreman.pid"))
}

func TestShoreman_MissingProcfile(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)

	dir := t.TempDir()
	inst := startShoreman(t, binary, dir)

	assert.Equal(t, 1, inst.exitCode(t, 10*time.Second))
	assert.Contains(t, inst.stderr.String(), "Error: Procfile not found")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
