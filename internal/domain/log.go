package domain

import "time"

// Stream represents the output stream type
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamSystem marks lines written by the supervisor itself
	StreamSystem Stream = "system"
)

// String returns the string representation of Stream
func (s Stream) String() string {
	return string(s)
}

// LogEntry represents a single log line attributed to a command
type LogEntry struct {
	Timestamp time.Time
	Process   string
	// Index is the command's position in the Procfile; it selects the color
	Index  int
	Stream Stream
	Line   string
}
