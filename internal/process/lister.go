// Package process answers "which executables are running right now".
package process

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Lister returns the names of running executables
type Lister interface {
	Running(ctx context.Context) ([]string, error)
}

// CommandLister shells out to ps, or tasklist on Windows
type CommandLister struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewLister() *CommandLister {
	return &CommandLister{goos: runtime.GOOS, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (l *CommandLister) Running(ctx context.Context) ([]string, error) {
	if l.goos == "windows" {
		out, err := l.run(ctx, "tasklist", "/fo", "csv", "/nh")
		if err != nil {
			return nil, fmt.Errorf("tasklist failed: %w", err)
		}
		return parseTasklist(out)
	}

	out, err := l.run(ctx, "ps", "-A", "-o", "comm=")
	if err != nil {
		return nil, fmt.Errorf("ps failed: %w", err)
	}
	return parsePS(out), nil
}

func parsePS(out []byte) []string {
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		names = append(names, filepath.Base(line))
	}
	return names
}

func parseTasklist(out []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unexpected tasklist output: %w", err)
	}
	names := make([]string, 0, len(records))
	for _, rec := range records {
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		names = append(names, rec[0])
	}
	return names, nil
}

// Matches reports whether processName appears in running. Names compare
// case-insensitively and an ".exe" suffix is ignored.
func Matches(running []string, processName string) bool {
	want := normalize(processName)
	if want == "" {
		return false
	}
	for _, name := range running {
		if normalize(name) == want {
			return true
		}
	}
	return false
}

func normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".exe")
}
