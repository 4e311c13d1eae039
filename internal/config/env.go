package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// LoadEnv reads an environment override file and returns its variables.
// A missing file is not an error and yields a nil map. Blank lines, comments
// and lines without '=' are skipped. Values are taken literally apart from
// one leading and one trailing quote character.
func LoadEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening env file %s: %w", path, err)
	}
	defer f.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		env[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	return env, nil
}

// parseEnvLine splits a KEY=VALUE line on the first '='. A leading
// "export " is dropped from the key. No escapes, expansion or inline
// comments are interpreted.
func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}

	key, value, ok = strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}

	key = strings.TrimSpace(key)
	if rest, found := strings.CutPrefix(key, "export "); found {
		key = strings.TrimSpace(rest)
	}
	if key == "" {
		return "", "", false
	}

	return key, stripQuotes(value), true
}

// stripQuotes removes one leading and one trailing quote character,
// independently of each other
func stripQuotes(v string) string {
	if v != "" && (v[0] == '"' || v[0] == '\'') {
		v = v[1:]
	}
	if n := len(v); n > 0 && (v[n-1] == '"' || v[n-1] == '\'') {
		v = v[:n-1]
	}
	return v
}

// ApplyEnv sets each variable in the process environment unless the
// environment already defines it. It returns the applied keys, sorted.
func ApplyEnv(env map[string]string) ([]string, error) {
	applied := make([]string, 0, len(env))
	for k, v := range env {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return applied, fmt.Errorf("setting %s: %w", k, err)
		}
		applied = append(applied, k)
	}
	sort.Strings(applied)
	return applied, nil
}

// LoadAndApplyEnv loads path and applies it to the process environment
func LoadAndApplyEnv(path string) ([]string, error) {
	env, err := LoadEnv(path)
	if err != nil {
		return nil, err
	}
	return ApplyEnv(env)
}
