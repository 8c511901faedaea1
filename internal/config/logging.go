package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel is the daemon's logging verbosity.
type LogLevel int

const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// ParseLogLevel maps a config string to a level, defaulting to error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

// Logger appends timestamped lines to a single log file. Secrets must
// never be passed to it; callers log identifiers and outcomes only.
type Logger struct {
	mu    sync.Mutex
	level LogLevel
	file  *os.File
}

// NewLogger opens (or creates) the log file at path. The caller is
// responsible for tilde expansion. A level of off, or an empty path,
// yields a logger that writes nothing.
func NewLogger(level LogLevel, path string) (*Logger, error) {
	if level == LogLevelOff || path == "" {
		return &Logger{level: LogLevelOff}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- path comes from validated config
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &Logger{level: level, file: f}, nil
}

// NullLogger returns a logger that discards everything.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff}
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || level > l.level {
		return
	}

	_, _ = fmt.Fprintf(l.file, "%s [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		strings.ToUpper(level.String()),
		fmt.Sprintf(format, args...))
}
