package logging

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"time"
)

// LogConfig selects which sinks NewLogger builds
type LogConfig struct {
	Level           LogLevel
	Component       string
	OutputFile      string
	EnableConsole   bool
	EnableDebug     bool
	RedactSensitive bool
	EnableColor     bool
	EnableTimestamp bool
	MaxFileSize     int64
	MaxBackups      int
}

// DefaultLogConfig returns console logging at INFO with redaction on
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:           INFO,
		EnableConsole:   true,
		RedactSensitive: true,
		EnableColor:     true,
		EnableTimestamp: true,
		MaxFileSize:     10 * 1024 * 1024,
		MaxBackups:      5,
	}
}

// NewLogger builds a console, file, multi or no-op logger from config
func NewLogger(config LogConfig) (Logger, error) {
	level := config.Level
	if config.EnableDebug {
		level = DEBUG
	}

	var loggers []Logger

	if config.EnableConsole {
		loggers = append(loggers, NewConsoleLogger(ConsoleLoggerConfig{
			Writer:           os.Stderr,
			Level:            level,
			Component:        config.Component,
			ColorEnabled:     config.EnableColor,
			TimestampEnabled: config.EnableTimestamp,
			RedactSensitive:  config.RedactSensitive,
		}))
	}

	if config.OutputFile != "" {
		fileLogger, err := NewFileLogger(FileLoggerConfig{
			FilePath:      config.OutputFile,
			Level:         level,
			Component:     config.Component,
			MaxFileSize:   config.MaxFileSize,
			RotateEnabled: config.MaxFileSize > 0,
			MaxBackups:    config.MaxBackups,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		loggers = append(loggers, fileLogger)
	}

	switch len(loggers) {
	case 0:
		return NewNoOpLogger(), nil
	case 1:
		return loggers[0], nil
	default:
		return NewMultiLogger(loggers...), nil
	}
}

// DebugTransport logs every remote request and response at DEBUG
type DebugTransport struct {
	Base   http.RoundTripper
	Logger Logger
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if dump, err := httputil.DumpRequestOut(req, false); err == nil {
		t.Logger.Debug("HTTP request", F("method", req.Method), F("url", req.URL.String()), F("dump", string(dump)))
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	if err != nil {
		t.Logger.Debug("HTTP request failed", F("url", req.URL.String()), F("error", err.Error()))
		return nil, err
	}

	t.Logger.Debug("HTTP response",
		F("url", req.URL.String()),
		F("status", resp.StatusCode),
		F("duration_ms", time.Since(start).Milliseconds()),
	)
	return resp, nil
}

// NewDebugLoggerWithTransport returns a logger plus, when EnableDebug is set,
// a transport that traces remote calls through it.
func NewDebugLoggerWithTransport(config LogConfig) (Logger, *DebugTransport, error) {
	logger, err := NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	if !config.EnableDebug {
		return logger, nil, nil
	}
	return logger, &DebugTransport{Base: http.DefaultTransport, Logger: logger}, nil
}
