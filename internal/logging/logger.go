package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/amplihack-recipes/internal/config"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger appends timestamped lines to .amplihack/logs/recipes.log so users
// can inspect a run after the terminal output is gone. A nil *Logger is a
// valid no-op logger.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	mirror  io.Writer
	verbose bool
	now     func() time.Time
}

// New creates (or reuses) the log file for the current project directory.
// When verbose is set every entry is mirrored to stderr and debug entries
// are recorded.
func New(projectDir string, verbose bool) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.StateDirName, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "recipes.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	l := &Logger{file: f, verbose: verbose, now: time.Now}
	if verbose {
		l.mirror = os.Stderr
	}
	return l, nil
}

// NewWriter logs to w instead of a file. Tests use it to capture entries.
func NewWriter(w io.Writer, verbose bool) *Logger {
	return &Logger{mirror: w, verbose: verbose, now: time.Now}
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Verbose reports whether debug entries are recorded.
func (l *Logger) Verbose() bool {
	return l != nil && l.verbose
}

// Printf writes a single timestamped info line.
func (l *Logger) Printf(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Append writes a single entry at the given level.
func (l *Logger) Append(level Level, message string) {
	if l == nil {
		return
	}
	if level == LevelDebug && !l.verbose {
		return
	}
	line := fmt.Sprintf("%s %-5s %s\n",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimRight(strings.TrimSpace(message), "\n"),
	)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_, _ = l.file.WriteString(line)
	}
	if l.mirror != nil {
		_, _ = io.WriteString(l.mirror, line)
	}
}

// Debug appends a debug entry (verbose only).
func (l *Logger) Debug(format string, args ...any) {
	l.Append(LevelDebug, fmt.Sprintf(format, args...))
}

// Info appends an informational entry.
func (l *Logger) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logger) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logger) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
