// Package constants provides shared configuration values used across the shoreman application.
package constants

import "time"

// File defaults, relative to the working directory
const (
	// DefaultProcfile is the command list used when no path is given
	DefaultProcfile = "Procfile"

	// ScriptsProcfile is checked before DefaultProcfile during discovery
	ScriptsProcfile = "scripts/Procfile"

	// DefaultEnvFile is the environment override file used when no path is given
	DefaultEnvFile = ".env"

	// PIDFile holds the PID of the running supervisor
	PIDFile = ".shoreman.pid"

	// LogFile receives the uncolored output of every command
	LogFile = "dev.log"

	// PrevLogFile is where the previous run's LogFile is moved at startup
	PrevLogFile = "dev-prev.log"
)

// Timeout and duration defaults
const (
	// ShutdownGrace is how long the supervisor lingers after signalling
	// its children before it exits
	ShutdownGrace = 1 * time.Second

	// OutputDrainTimeout bounds how long an exited process's output readers
	// may keep running. Grandchildren can hold the pipes open.
	OutputDrainTimeout = 5 * time.Second

	// ExitWaitTimeout bounds how long the supervisor waits at exit for
	// process monitors to report
	ExitWaitTimeout = 500 * time.Millisecond
)

// Buffer sizes
const (
	// ScannerBufferSize is the initial buffer size for log line scanning
	ScannerBufferSize = 64 * 1024 // 64KB

	// ScannerMaxBufferSize is the maximum buffer size for log line scanning
	ScannerMaxBufferSize = 1024 * 1024 // 1MB
)

// Log file banners
const (
	// BannerRule frames the startup banner in the log file
	BannerRule = "!!! ================================================================="

	// StartedBanner is written to the log file when the supervisor starts
	StartedBanner = "SHOREMAN STARTED"

	// ShutdownBanner is written to the log file when shutdown begins
	ShutdownBanner = "PROCESS MANAGER SHUTTING DOWN"
)

// TimestampFormat is the HH:MM:SS layout used on every log line
const TimestampFormat = "15:04:05"
