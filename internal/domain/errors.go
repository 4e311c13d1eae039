package domain

import "errors"

// Domain errors
var (
	ErrAlreadyRunning   = errors.New("services are already running")
	ErrProcfileNotFound = errors.New("procfile not found")
	ErrNoCommands       = errors.New("no commands found in procfile")
	ErrInvalidProcfile  = errors.New("invalid procfile")
)

