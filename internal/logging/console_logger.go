package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// ConsoleLoggerConfig configures a ConsoleLogger
type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	Component        string
	ColorEnabled     bool
	TimestampEnabled bool
	RedactSensitive  bool
	Clock            clockwork.Clock
}

// ConsoleLogger writes one human-readable line per entry:
//
//	2026-01-02 15:04:05 INFO  [changes] (1a2b3c4d) Poll finished changes=3
type ConsoleLogger struct {
	out     *consoleOut
	cfg     ConsoleLoggerConfig
	traceID string

	mu    sync.Mutex
	level LogLevel
}

// consoleOut serializes writes of a logger and everything derived from it
type consoleOut struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &ConsoleLogger{
		out:   &consoleOut{w: config.Writer},
		cfg:   config,
		level: config.Level,
	}
}

var redactions = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(access_token|refresh_token|id_token|client_secret|code_verifier)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`), "$1=[REDACTED]"},
	// authorization code on the loopback redirect
	{regexp.MustCompile(`([?&]code=)[^&\s"']+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)authorization["']?\s*[:=]\s*["']?[^\s"']+`), "Authorization: [REDACTED]"},
}

func redactSensitiveData(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.repl)
	}
	return s
}

func (l *ConsoleLogger) paint(sb *strings.Builder, color, text string) {
	if l.cfg.ColorEnabled && color != "" {
		sb.WriteString(color)
		sb.WriteString(text)
		sb.WriteString(colorReset)
		return
	}
	sb.WriteString(text)
}

func levelColor(level LogLevel) string {
	switch level {
	case DEBUG:
		return colorBlue
	case WARN:
		return colorYellow
	case ERROR:
		return colorRed
	default:
		return ""
	}
}

func (l *ConsoleLogger) format(level LogLevel, msg string, fields []Field) string {
	var sb strings.Builder

	if l.cfg.TimestampEnabled {
		l.paint(&sb, colorGray, l.cfg.Clock.Now().Format("2006-01-02 15:04:05"))
		sb.WriteByte(' ')
	}
	l.paint(&sb, levelColor(level), fmt.Sprintf("%-5s", level.String()))
	sb.WriteByte(' ')

	if l.cfg.Component != "" {
		sb.WriteString("[" + l.cfg.Component + "] ")
	}
	if l.traceID != "" {
		l.paint(&sb, colorGray, "("+shortTraceID(l.traceID)+")")
		sb.WriteByte(' ')
	}

	sb.WriteString(l.redact(msg))
	for _, f := range fields {
		sb.WriteByte(' ')
		sb.WriteString(f.Key)
		sb.WriteByte('=')
		sb.WriteString(formatValue(l.redact(fmt.Sprint(f.Value))))
	}
	return sb.String()
}

func (l *ConsoleLogger) redact(s string) string {
	if !l.cfg.RedactSensitive {
		return s
	}
	return redactSensitiveData(s)
}

// formatValue quotes values that would otherwise be ambiguous on one line
func formatValue(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		return strconv.Quote(v)
	}
	return v
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields ...Field) {
	l.mu.Lock()
	threshold := l.level
	l.mu.Unlock()
	if level < threshold {
		return
	}

	line := l.format(level, msg, fields)
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = fmt.Fprintln(l.out.w, line)
}

func (l *ConsoleLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }
func (l *ConsoleLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields...) }
func (l *ConsoleLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields...) }
func (l *ConsoleLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &ConsoleLogger{out: l.out, cfg: l.cfg, traceID: traceID, level: l.level}
}

func (l *ConsoleLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *ConsoleLogger) Close() error {
	return nil
}

func shortTraceID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
