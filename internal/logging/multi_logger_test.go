package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type closeErrLogger struct {
	NoOpLogger
	closed int
	err    error
}

func (c *closeErrLogger) Close() error {
	c.closed++
	return c.err
}

func TestMultiLogger_FansOut(t *testing.T) {
	var console, verbose bytes.Buffer
	m := NewMultiLogger(
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &console, Level: INFO, Component: "ui"}),
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &verbose, Level: DEBUG, Component: "ui"}),
	)

	m.Debug("Refresh handler ran")
	m.Info("UI started", F("port", 47000))
	m.Warn("Daemon not reachable")
	m.Error("Transfer failed")

	if got := strings.Count(console.String(), "\n"); got != 3 {
		t.Errorf("INFO sink got %d lines, want 3:\n%s", got, console.String())
	}
	if got := strings.Count(verbose.String(), "\n"); got != 4 {
		t.Errorf("DEBUG sink got %d lines, want 4:\n%s", got, verbose.String())
	}
	if !strings.Contains(console.String(), "port=47000") {
		t.Errorf("field missing: %s", console.String())
	}
}

func TestMultiLogger_TraceAndLevel(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMultiLogger(
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &a, Level: INFO}),
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &b, Level: INFO}),
	)

	m.WithContext(ContextWithTraceID(testContext(), "0123456789abcdef")).Info("traced")
	m.SetLevel(ERROR)
	m.Warn("hidden")

	for name, buf := range map[string]*bytes.Buffer{"a": &a, "b": &b} {
		out := buf.String()
		if !strings.Contains(out, "(01234567) traced") {
			t.Errorf("sink %s missing short trace id: %q", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("sink %s ignored SetLevel: %q", name, out)
		}
	}
	if m.WithContext(testContext()) != Logger(m) {
		t.Error("WithContext without a trace id should return the logger itself")
	}
}

func TestMultiLogger_CloseReturnsFirstError(t *testing.T) {
	first := &closeErrLogger{err: errors.New("disk full")}
	second := &closeErrLogger{err: errors.New("ignored")}
	m := NewMultiLogger(first, second)

	err := m.Close()
	if err == nil || err.Error() != "disk full" {
		t.Errorf("Close() = %v, want disk full", err)
	}
	if first.closed != 1 || second.closed != 1 {
		t.Errorf("every sink should be closed once: %d, %d", first.closed, second.closed)
	}
}

func TestMultiLogger_FileAndConsole(t *testing.T) {
	var console bytes.Buffer
	file, fs, _ := newMemFileLogger(t, FileLoggerConfig{Level: INFO, Component: "processes"})
	m := NewMultiLogger(NewConsoleLogger(ConsoleLoggerConfig{Writer: &console, Level: INFO}), file)

	m.Info("Running games changed", F("running", []string{"Alpha"}))

	if !strings.Contains(console.String(), "running=[Alpha]") {
		t.Errorf("console output: %q", console.String())
	}
	entries := readEntries(t, fs, file.Path())
	if len(entries) != 1 || entries[0].Component != "processes" {
		t.Errorf("file entries: %+v", entries)
	}
}
