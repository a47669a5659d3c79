package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Level represents a log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level string
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the application logger
type Logger struct {
	level   Level
	file    *os.File
	console bool
	prefix  string
	logger  *log.Logger
}

// Config contains logger configuration
type Config struct {
	Level   string
	File    string
	Console bool
}

// New creates a new logger
func New(cfg Config) (*Logger, error) {
	l := &Logger{
		level:   ParseLevel(cfg.Level),
		console: cfg.Console,
	}

	var writers []io.Writer

	if cfg.File != "" {
		// Ensure directory exists
		dir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		writers = append(writers, f)
	}

	if cfg.Console {
		writers = append(writers, os.Stderr)
	}

	if len(writers) == 0 {
		// Default to stderr if no outputs configured
		writers = append(writers, os.Stderr)
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	l.logger = log.New(writer, "", 0)

	return l, nil
}

// NewWriter creates a logger writing to w only
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{level: level, logger: log.New(w, "", 0)}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return NewWriter(io.Discard, LevelError+1)
}

// Named returns a logger for a component. It shares the outputs of l and
// tags every line with the component name.
func (l *Logger) Named(component string) *Logger {
	c := *l
	c.file = nil
	if l.prefix != "" {
		c.prefix = l.prefix + "." + component
	} else {
		c.prefix = component
	}
	return &c
}

// Close closes the logger
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// log logs a message at the given level
func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		l.logger.Printf("%s [%s] %s: %s", timestamp, level.String(), l.prefix, message)
		return
	}
	l.logger.Printf("%s [%s] %s", timestamp, level.String(), message)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}
