// Package logger provides a small levelled logging interface for the agent.
// Packages log through Logger so tests can capture messages and assert on
// their level without touching the process-wide log output.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Level is a logging threshold. Messages below the threshold are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a config string (debug, info, warn, error) to a Level.
// Unknown strings return LevelInfo and false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// stdLogger writes through a *log.Logger with a component prefix.
type stdLogger struct {
	out    *log.Logger
	prefix string
	level  *Level
}

// New creates a logger that writes to w with the given component prefix
// (e.g., "[status]") and drops messages below level.
func New(w io.Writer, prefix string, level Level) Logger {
	return &stdLogger{
		out:    log.New(w, "", log.LstdFlags),
		prefix: prefix,
		level:  &level,
	}
}

// Std returns a logger backed by the standard library's default logger.
// Its threshold follows SetLevel.
func Std(prefix string) Logger {
	return &stdLogger{out: log.Default(), prefix: prefix, level: &globalLevel}
}

func (l *stdLogger) logf(level Level, tag, format string, args ...interface{}) {
	levelMu.RLock()
	threshold := *l.level
	levelMu.RUnlock()
	if level < threshold {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = l.prefix + " " + tag + msg
	} else {
		msg = tag + msg
	}
	l.out.Print(msg)
}

func (l *stdLogger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, "DEBUG: ", format, args...)
}

func (l *stdLogger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, "", format, args...)
}

func (l *stdLogger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, "WARN: ", format, args...)
}

func (l *stdLogger) Error(format string, args ...interface{}) {
	l.logf(LevelError, "ERROR: ", format, args...)
}

var (
	levelMu     sync.RWMutex
	globalLevel = LevelInfo
)

// SetLevel changes the threshold shared by every logger returned from Std.
func SetLevel(level Level) {
	levelMu.Lock()
	globalLevel = level
	levelMu.Unlock()
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(format string, args ...interface{}) {}
func (noopLogger) Info(format string, args ...interface{})  {}
func (noopLogger) Warn(format string, args ...interface{})  {}
func (noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   Level
	Message string
}

// BufferLogger captures log messages for testing.
// It is safe for concurrent use.
type BufferLogger struct {
	mu       sync.Mutex
	messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{}
}

func (l *BufferLogger) add(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	l.messages = append(l.messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
	l.mu.Unlock()
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.add(LevelDebug, format, args...) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.add(LevelInfo, format, args...) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.add(LevelWarn, format, args...) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.add(LevelError, format, args...) }

// Messages returns a copy of the captured messages.
func (l *BufferLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// Count returns how many messages were logged at the given level.
func (l *BufferLogger) Count(level Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if m.Level == level {
			n++
		}
	}
	return n
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level Level) bool {
	return l.Count(level) > 0
}

// Contains returns true if any message at the given level contains substr.
func (l *BufferLogger) Contains(level Level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m.Level == level && strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	l.messages = l.messages[:0]
	l.mu.Unlock()
}
