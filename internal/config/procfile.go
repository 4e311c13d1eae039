package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charliek/shoreman/internal/constants"
	"github.com/charliek/shoreman/internal/domain"
	"gopkg.in/yaml.v3"
)

// LoadProcfile reads the command list at path.
// Paths ending in .yml or .yaml are decoded as a YAML mapping; anything else
// uses the line-oriented "name: command" format.
func LoadProcfile(path string) ([]domain.CommandSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProcfileNotFound, path)
		}
		return nil, fmt.Errorf("reading procfile: %w", err)
	}

	var specs []domain.CommandSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		specs, err = ParseProcfileYAML(data)
	default:
		specs, err = ParseProcfile(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoCommands, path)
	}

	if err := Validate(specs); err != nil {
		return nil, err
	}

	return specs, nil
}

// ParseProcfile parses "name: command" lines in file order.
// Blank lines and lines starting with # are ignored. Lines without a colon,
// or with an empty name or command, are skipped.
func ParseProcfile(r io.Reader) ([]domain.CommandSpec, error) {
	var specs []domain.CommandSpec

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, constants.ScannerBufferSize), constants.ScannerMaxBufferSize)

	for scanner.Scan() {
		spec, ok := parseProcfileLine(scanner.Text())
		if ok {
			specs = append(specs, spec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading procfile: %w", err)
	}

	return specs, nil
}

func parseProcfileLine(line string) (domain.CommandSpec, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return domain.CommandSpec{}, false
	}

	name, command, found := strings.Cut(line, ":")
	if !found {
		return domain.CommandSpec{}, false
	}

	name = strings.TrimSpace(name)
	command = strings.TrimSpace(command)
	if name == "" || command == "" {
		return domain.CommandSpec{}, false
	}

	return domain.CommandSpec{Name: name, Command: command}, true
}

// ParseProcfileYAML parses a top-level YAML mapping of name to command,
// keeping document order
func ParseProcfileYAML(data []byte) ([]domain.CommandSpec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", domain.ErrInvalidProcfile, err)
	}

	// An empty document has no content node
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a mapping of name to command", domain.ErrInvalidProcfile)
	}

	specs := make([]domain.CommandSpec, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: command for %q must be a string (line %d)",
				domain.ErrInvalidProcfile, key.Value, value.Line)
		}

		name := strings.TrimSpace(key.Value)
		command := strings.TrimSpace(value.Value)
		if name == "" || command == "" {
			continue
		}
		specs = append(specs, domain.CommandSpec{Name: name, Command: command})
	}

	return specs, nil
}

// FindProcfile returns the first existing default Procfile location.
// When none exists DefaultProcfile is returned, so that the caller's
// not-found error names it.
func FindProcfile() string {
	candidates := []string{
		constants.ScriptsProcfile,
		constants.DefaultProcfile,
	}

	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	return constants.DefaultProcfile
}
