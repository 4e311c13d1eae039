package config

import (
	"fmt"
	"strings"

	"github.com/charliek/shoreman/internal/domain"
)

// ValidationError represents a Procfile validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a parsed command list for errors.
// Names label log lines, so they must be unique.
func Validate(specs []domain.CommandSpec) error {
	var errs []string
	seen := make(map[string]bool, len(specs))

	for _, spec := range specs {
		if seen[spec.Name] {
			errs = append(errs, ValidationError{Field: spec.Name, Message: "duplicate process name"}.Error())
			continue
		}
		seen[spec.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidProcfile, strings.Join(errs, "; "))
	}

	return nil
}
