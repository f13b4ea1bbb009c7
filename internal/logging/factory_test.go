package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testContext() context.Context {
	return context.Background()
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != INFO || !config.EnableConsole || !config.RedactSensitive {
		t.Errorf("unexpected defaults: %+v", config)
	}
	if config.MaxFileSize != 10*1024*1024 || config.MaxBackups != 5 {
		t.Errorf("unexpected rotation defaults: size=%d backups=%d", config.MaxFileSize, config.MaxBackups)
	}
}

func TestNewLogger_Sinks(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		console bool
		file    string
		check   func(Logger) bool
	}{
		{name: "console", console: true, check: func(l Logger) bool { _, ok := l.(*ConsoleLogger); return ok }},
		{name: "file", file: filepath.Join(dir, "a", "processes.log"), check: func(l Logger) bool { _, ok := l.(*FileLogger); return ok }},
		{name: "both", console: true, file: filepath.Join(dir, "watchdog.log"), check: func(l Logger) bool { _, ok := l.(*MultiLogger); return ok }},
		{name: "none", check: func(l Logger) bool { _, ok := l.(*NoOpLogger); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(LogConfig{Level: INFO, EnableConsole: tt.console, OutputFile: tt.file, MaxFileSize: 1024})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			t.Cleanup(func() { _ = logger.Close() })

			if !tt.check(logger) {
				t.Errorf("unexpected logger type %T", logger)
			}
			if tt.file != "" {
				if _, err := os.Stat(tt.file); err != nil {
					t.Errorf("log file not created: %v", err)
				}
			}
		})
	}
}

func TestNewLogger_UnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewLogger(LogConfig{Level: INFO, OutputFile: filepath.Join(blocker, "ui.log")})
	if err == nil {
		t.Error("expected error when the log directory is a file")
	}
}

func TestNewDebugLoggerWithTransport(t *testing.T) {
	tests := []struct {
		name          string
		debug         bool
		wantTransport bool
	}{
		{name: "debug", debug: true, wantTransport: true},
		{name: "no debug", debug: false, wantTransport: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, transport, err := NewDebugLoggerWithTransport(LogConfig{Level: INFO, EnableDebug: tt.debug})
			if err != nil {
				t.Fatalf("NewDebugLoggerWithTransport() error = %v", err)
			}
			t.Cleanup(func() { _ = logger.Close() })
			if (transport != nil) != tt.wantTransport {
				t.Errorf("transport = %v, want present=%v", transport, tt.wantTransport)
			}
		})
	}
}

type recordingLogger struct {
	NoOpLogger
	debug []string
}

func (r *recordingLogger) Debug(msg string, fields ...Field) {
	parts := []string{msg}
	for _, f := range fields {
		parts = append(parts, f.Key)
	}
	r.debug = append(r.debug, strings.Join(parts, " "))
}

func TestDebugTransport_LogsRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	rec := &recordingLogger{}
	client := &http.Client{Transport: &DebugTransport{Logger: rec}}
	resp, err := client.Get(server.URL + "/drive/v3/changes")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if len(rec.debug) != 2 {
		t.Fatalf("expected request and response lines, got %q", rec.debug)
	}
	if !strings.HasPrefix(rec.debug[0], "HTTP request") || !strings.Contains(rec.debug[1], "status") {
		t.Errorf("unexpected lines: %q", rec.debug)
	}
}
