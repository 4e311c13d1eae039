// Package logs multiplexes command output into the console and the log file.
package logs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charliek/shoreman/internal/constants"
	"github.com/charliek/shoreman/internal/domain"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette holds the per-command colors, in assignment order
var Palette = []lipgloss.Color{
	"1", // red
	"2", // green
	"3", // yellow
	"4", // blue
	"5", // magenta
	"6", // cyan
	"7", // white
}

// SinkConfig holds configuration for the log sink
type SinkConfig struct {
	// Console receives colored lines; nil disables console output
	Console io.Writer
	// Path is the log file; empty disables file output
	Path string
	// BackupPath receives the previous run's log file, if any
	BackupPath string
}

// DefaultSinkConfig returns the default configuration
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Console:    os.Stdout,
		Path:       constants.LogFile,
		BackupPath: constants.PrevLogFile,
	}
}

// Sink is the process-wide log stream. Every line is a single write under
// one mutex, so concurrent producers never interleave partial lines.
type Sink struct {
	mu sync.Mutex

	console  io.Writer
	file     io.WriteCloser
	renderer *lipgloss.Renderer
	styles   []lipgloss.Style
	closed   bool

	now func() time.Time
}

// Open rotates the previous log, creates a fresh log file and writes the
// startup banner to it
func Open(cfg SinkConfig) (*Sink, error) {
	var file io.WriteCloser
	if cfg.Path != "" {
		if err := Rotate(cfg.Path, cfg.BackupPath); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		file = f
	}

	s := NewSink(cfg.Console, file)
	s.writeStartBanner()
	return s, nil
}

// NewSink creates a sink over an already open console and file.
// Either may be nil.
func NewSink(console io.Writer, file io.WriteCloser) *Sink {
	s := &Sink{
		console: console,
		file:    file,
		now:     time.Now,
	}
	if console != nil {
		s.renderer = lipgloss.NewRenderer(console)
	} else {
		s.renderer = lipgloss.NewRenderer(io.Discard)
	}
	s.buildStyles()
	return s
}

// SetColorProfile overrides the detected console color profile.
// termenv.Ascii disables colors.
func (s *Sink) SetColorProfile(p termenv.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer.SetColorProfile(p)
	s.buildStyles()
}

func (s *Sink) buildStyles() {
	s.styles = make([]lipgloss.Style, len(Palette))
	for i, c := range Palette {
		s.styles[i] = s.renderer.NewStyle().
			Foreground(c).
			TabWidth(lipgloss.NoTabConversion)
	}
}

// Write appends a log entry to the console and the file
func (s *Sink) Write(entry domain.LogEntry) {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	prefix := fmt.Sprintf("%s %s\t|", ts.Format(constants.TimestampFormat), entry.Process)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.console != nil {
		style := s.styles[colorIndex(entry.Index)]
		fmt.Fprintf(s.console, "%s %s\n", style.Render(prefix), entry.Line)
	}

	if s.file != nil && !s.closed {
		fmt.Fprintf(s.file, "%s %s\n", prefix, entry.Line)
	}
}

// Logf writes a supervisor-generated line attributed to a command
func (s *Sink) Logf(name string, index int, format string, args ...any) {
	s.Write(domain.LogEntry{
		Timestamp: s.now(),
		Process:   name,
		Index:     index,
		Stream:    domain.StreamSystem,
		Line:      fmt.Sprintf(format, args...),
	})
}

// Banner writes a timestamped marker line to the log file only
func (s *Sink) Banner(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil && !s.closed {
		fmt.Fprintf(s.file, "%s %s\n", s.now().Format(constants.TimestampFormat), text)
	}
}

func (s *Sink) writeStartBanner() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	fmt.Fprintln(s.file, constants.BannerRule)
	fmt.Fprintf(s.file, "%s %s\n", s.now().Format(constants.TimestampFormat), constants.StartedBanner)
	fmt.Fprintln(s.file, constants.BannerRule)
}

// Close closes the log file. Later entries still reach the console.
// Close is idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Rotate moves path to backup, replacing any older backup.
// A missing path is not an error.
func Rotate(path, backup string) error {
	if backup == "" {
		return nil
	}
	if err := os.Rename(path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return nil
}

func colorIndex(index int) int {
	n := len(Palette)
	return ((index % n) + n) % n
}
