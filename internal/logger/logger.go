package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Logger is the structured diagnostics logger shared by the server,
// the handlers and the backend client.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel maps a config string to a Level. Unknown names fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// maxValueLen caps logged string values.
const maxValueLen = 100

// DefaultLogger writes "[timestamp] LEVEL: msg | k=v" lines.
type DefaultLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	min    Level
	now    func() time.Time
}

// NewDefaultLogger creates a logger writing to out at or above min.
func NewDefaultLogger(out io.Writer, min Level) *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(out, "", 0),
		min:    min,
		now:    time.Now,
	}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, fields...)
}

func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields...)
}

func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields...)
}

func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.log(LevelError, msg, fields...)
}

func (l *DefaultLogger) log(level Level, msg string, fields ...Field) {
	if level < l.min {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", l.now().Format("2006-01-02 15:04:05.000"), level, msg)

	if len(fields) > 0 {
		b.WriteString(" |")
		for _, f := range fields {
			fmt.Fprintf(&b, " %s=%v", f.Key, sanitizeValue(f.Value))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(b.String())
}

// sanitizeValue truncates long strings and renders errors as text.
func sanitizeValue(v interface{}) interface{} {
	switch s := v.(type) {
	case string:
		if len(s) > maxValueLen {
			return s[:maxValueLen] + "...[truncated]"
		}
	case error:
		return sanitizeValue(s.Error())
	}
	return v
}

// NullLogger discards all logs (for testing)
type NullLogger struct{}

func (NullLogger) Debug(msg string, fields ...Field) {}
func (NullLogger) Info(msg string, fields ...Field)  {}
func (NullLogger) Warn(msg string, fields ...Field)  {}
func (NullLogger) Error(msg string, fields ...Field) {}
