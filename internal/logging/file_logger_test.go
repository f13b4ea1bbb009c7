package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

func newMemFileLogger(t *testing.T, cfg FileLoggerConfig) (*FileLogger, afero.Fs, clockwork.FakeClock) {
	t.Helper()
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg.Fs = fs
	cfg.Clock = clock
	if cfg.FilePath == "" {
		cfg.FilePath = "/cfg/logs/changes.log"
	}
	l, err := NewFileLogger(cfg)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, fs, clock
}

func readEntries(t *testing.T, fs afero.Fs, path string) []LogEntry {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var entries []LogEntry
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			t.Fatalf("line is not JSON: %q", line)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestFileLogger_WritesEntries(t *testing.T) {
	l, fs, _ := newMemFileLogger(t, FileLoggerConfig{Level: DEBUG, Component: "changes"})

	l.Info("Poll finished", F("changes", 3), F("error", errors.New("quota exceeded")))
	l.Debug("Cursor stored")

	entries := readEntries(t, fs, "/cfg/logs/changes.log")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0]
	if first.Level != "INFO" || first.Component != "changes" || first.Message != "Poll finished" {
		t.Errorf("unexpected entry: %+v", first)
	}
	if !first.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}
	if first.Fields["changes"] != float64(3) {
		t.Errorf("changes field = %v", first.Fields["changes"])
	}
	if first.Fields["error"] != "quota exceeded" {
		t.Errorf("error field = %v", first.Fields["error"])
	}
	if entries[1].Fields != nil {
		t.Errorf("expected no fields, got %v", entries[1].Fields)
	}
}

func TestFileLogger_LevelFiltering(t *testing.T) {
	l, fs, _ := newMemFileLogger(t, FileLoggerConfig{Level: WARN})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("Activity update failed")
	l.SetLevel(ERROR)
	l.Warn("hidden")
	l.Error("Work failed")

	entries := readEntries(t, fs, "/cfg/logs/changes.log")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("unexpected levels: %s, %s", entries[0].Level, entries[1].Level)
	}
}

func TestFileLogger_TraceIDSharesFile(t *testing.T) {
	l, fs, _ := newMemFileLogger(t, FileLoggerConfig{Level: INFO})

	traced := l.WithTraceID("trace-1")
	fromCtx := l.WithContext(ContextWithTraceID(testContext(), "trace-2"))
	untraced := l.WithContext(testContext())

	l.Info("plain")
	traced.Info("traced")
	fromCtx.Info("from context")
	untraced.Info("no trace")

	entries := readEntries(t, fs, "/cfg/logs/changes.log")
	want := []string{"", "trace-1", "trace-2", ""}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.TraceID != want[i] {
			t.Errorf("entry %d trace = %q, want %q", i, e.TraceID, want[i])
		}
	}
	if untraced != Logger(l) {
		t.Error("WithContext without a trace id should return the logger itself")
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	l, fs, clock := newMemFileLogger(t, FileLoggerConfig{
		Level:         INFO,
		MaxFileSize:   200,
		RotateEnabled: true,
		MaxBackups:    2,
	})

	msg := strings.Repeat("x", 120)
	for i := 0; i < 5; i++ {
		l.Info(msg)
		clock.Advance(time.Second)
	}

	backups, err := l.sink.backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after pruning, got %v", backups)
	}
	if !strings.HasSuffix(backups[1], "changes.log.20260301-120004") {
		t.Errorf("newest backup = %s", backups[1])
	}
	if got := len(readEntries(t, fs, l.Path())); got != 1 {
		t.Errorf("active file has %d entries, want 1", got)
	}
}

func TestFileLogger_RotationSameSecond(t *testing.T) {
	l, _, _ := newMemFileLogger(t, FileLoggerConfig{
		Level:         INFO,
		MaxFileSize:   100,
		RotateEnabled: true,
	})

	for i := 0; i < 3; i++ {
		l.Info(strings.Repeat("y", 120))
	}

	backups, err := l.sink.backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %v", backups)
	}
	if !strings.HasSuffix(backups[0], ".20260301-120000") || !strings.HasSuffix(backups[1], ".20260301-120000.1") {
		t.Errorf("unexpected backup order: %v", backups)
	}
}

func TestFileLogger_WriteAfterClose(t *testing.T) {
	l, fs, _ := newMemFileLogger(t, FileLoggerConfig{Level: INFO})
	l.Info("before")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	l.Info("after")
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if got := len(readEntries(t, fs, l.Path())); got != 1 {
		t.Errorf("expected 1 entry, got %d", got)
	}
}
