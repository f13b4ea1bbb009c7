package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const rotateTimeFormat = "20060102-150405"

// FileLoggerConfig configures a FileLogger
type FileLoggerConfig struct {
	FilePath  string
	Level     LogLevel
	Component string
	// MaxFileSize in bytes; 0 disables rotation
	MaxFileSize   int64
	RotateEnabled bool
	// MaxBackups caps the rotated files kept next to FilePath; 0 keeps all
	MaxBackups int
	Fs         afero.Fs
	Clock      clockwork.Clock
}

// FileLogger writes one JSON LogEntry per line. The file is rotated by size
// and old generations are pruned. Loggers derived with WithTraceID share
// the open file.
type FileLogger struct {
	sink      *fileSink
	component string
	traceID   string

	mu    sync.Mutex
	level LogLevel
}

func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	maxSize := int64(0)
	if config.RotateEnabled {
		maxSize = config.MaxFileSize
	}

	sink := &fileSink{
		fs:         config.Fs,
		path:       config.FilePath,
		maxSize:    maxSize,
		maxBackups: config.MaxBackups,
		clock:      config.Clock,
	}
	if err := config.Fs.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := sink.open(); err != nil {
		return nil, err
	}

	return &FileLogger{sink: sink, component: config.Component, level: config.Level}, nil
}

// Path is the active log file
func (l *FileLogger) Path() string {
	return l.sink.path
}

func (l *FileLogger) log(level LogLevel, msg string, fields ...Field) {
	l.mu.Lock()
	threshold := l.level
	l.mu.Unlock()
	if level < threshold {
		return
	}

	entry := LogEntry{
		Timestamp: l.sink.clock.Now().UTC(),
		Level:     level.String(),
		Component: l.component,
		Message:   msg,
		TraceID:   l.traceID,
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields))
		for _, f := range fields {
			entry.Fields[f.Key] = jsonSafe(f.Value)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	if err := l.sink.write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log entry: %v\n", err)
	}
}

// jsonSafe keeps errors readable; json.Marshal renders them as {}
func jsonSafe(v interface{}) interface{} {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

func (l *FileLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }
func (l *FileLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields...) }
func (l *FileLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields...) }
func (l *FileLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

func (l *FileLogger) WithTraceID(traceID string) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &FileLogger{sink: l.sink, component: l.component, traceID: traceID, level: l.level}
}

func (l *FileLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

func (l *FileLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes the shared file; derived loggers stop writing too
func (l *FileLogger) Close() error {
	return l.sink.close()
}

// fileSink owns the open file and its size accounting
type fileSink struct {
	mu         sync.Mutex
	fs         afero.Fs
	path       string
	file       afero.File
	size       int64
	maxSize    int64
	maxBackups int
	clock      clockwork.Clock
}

func (s *fileSink) open() error {
	file, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	s.file = file
	s.size = info.Size()
	return nil
}

func (s *fileSink) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return os.ErrClosed
	}
	if s.maxSize > 0 && s.size > 0 && s.size+int64(len(data)) > s.maxSize {
		if err := s.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log file: %v\n", err)
			if s.file == nil {
				return err
			}
		}
	}
	n, err := s.file.Write(data)
	s.size += int64(n)
	return err
}

// rotate renames the active file to <path>.<timestamp> and reopens it.
// The caller holds mu.
func (s *fileSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	target := s.path + "." + s.clock.Now().UTC().Format(rotateTimeFormat)
	for i := 1; ; i++ {
		if _, err := s.fs.Stat(target); err != nil {
			break
		}
		target = fmt.Sprintf("%s.%s.%d", s.path, s.clock.Now().UTC().Format(rotateTimeFormat), i)
	}

	renameErr := s.fs.Rename(s.path, target)
	if err := s.open(); err != nil {
		s.file = nil
		return err
	}
	if renameErr != nil {
		return fmt.Errorf("failed to rename log file: %w", renameErr)
	}
	s.prune()
	return nil
}

// prune removes the oldest rotated generations beyond maxBackups
func (s *fileSink) prune() {
	if s.maxBackups <= 0 {
		return
	}
	backups, err := s.backups()
	if err != nil || len(backups) <= s.maxBackups {
		return
	}
	for _, old := range backups[:len(backups)-s.maxBackups] {
		_ = s.fs.Remove(old)
	}
}

// backups lists rotated files oldest first
func (s *fileSink) backups() ([]string, error) {
	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), base+".") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return backupLess(out[i], out[j]) })
	return out, nil
}

// backupLess orders <ts> before <ts>.1 before <ts>.2 and by timestamp
func backupLess(a, b string) bool {
	ta, na := splitBackup(a)
	tb, nb := splitBackup(b)
	if ta != tb {
		return ta < tb
	}
	return na < nb
}

func splitBackup(name string) (string, int) {
	ext := filepath.Ext(name)
	var n int
	if _, err := fmt.Sscanf(ext, ".%d", &n); err == nil && len(ext) < len(rotateTimeFormat) {
		return strings.TrimSuffix(name, ext), n
	}
	return name, 0
}

func (s *fileSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
