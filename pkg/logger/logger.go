package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger writes leveled, structured messages for one component
type Logger struct {
	component string
}

var (
	mu          sync.Mutex
	level       = LevelInfo
	out         = log.New(io.Discard, "", log.LstdFlags)
	file        *os.File
	initialized bool
)

// Init configures the package logger. Relative log paths are created as given;
// the settings layer is responsible for resolving them first.
func Init(logPath string, levelStr string, persist bool) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if persist {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(logPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	level = ParseLevel(levelStr)
	file = f
	out = log.New(f, "", log.LstdFlags)
	initialized = true
	return nil
}

// Close closes the underlying log file
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	initialized = false
	out = log.New(io.Discard, "", log.LstdFlags)
	if file != nil {
		err := file.Close()
		file = nil
		return err
	}
	return nil
}

// SetOutput redirects log output (useful for testing)
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = log.New(w, "", log.LstdFlags)
	initialized = true
}

// SetLevel changes the minimum logged level
func SetLevel(l LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// ParseLevel converts a string level to LogLevel
func ParseLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// WithComponent returns a logger that tags every message with a component name
func WithComponent(name string) *Logger {
	return &Logger{component: name}
}

func write(lvl LogLevel, component, msg string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if lvl < level {
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(lvl.String())
	b.WriteString("]")
	if component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	if len(args)%2 == 1 {
		fmt.Fprintf(&b, " %v", args[len(args)-1])
	}

	out.Print(b.String())
	if lvl >= LevelError {
		fmt.Fprintln(os.Stderr, b.String())
	}
}

// Debug logs a debug message with key/value pairs
func (l *Logger) Debug(msg string, args ...any) { write(LevelDebug, l.component, msg, args...) }

// Info logs an info message with key/value pairs
func (l *Logger) Info(msg string, args ...any) { write(LevelInfo, l.component, msg, args...) }

// Warn logs a warning message with key/value pairs
func (l *Logger) Warn(msg string, args ...any) { write(LevelWarn, l.component, msg, args...) }

// Error logs an error message with key/value pairs
func (l *Logger) Error(msg string, args ...any) { write(LevelError, l.component, msg, args...) }

// Package-level convenience functions, printf style

// Debug logs a debug message using the package logger
func Debug(format string, args ...any) { write(LevelDebug, "", fmt.Sprintf(format, args...)) }

// Info logs an info message using the package logger
func Info(format string, args ...any) { write(LevelInfo, "", fmt.Sprintf(format, args...)) }

// Warn logs a warning message using the package logger
func Warn(format string, args ...any) { write(LevelWarn, "", fmt.Sprintf(format, args...)) }

// Error logs an error message using the package logger
func Error(format string, args ...any) { write(LevelError, "", fmt.Sprintf(format, args...)) }

// Fatal logs a fatal message and exits
func Fatal(format string, args ...any) {
	write(LevelFatal, "", fmt.Sprintf(format, args...))
	os.Exit(1)
}
