// Package logger is the leveled, component-prefixed logger used across the module.
// Records go through logrus; the prefix becomes the "component" field.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	TRACE LogLevel = iota // Per-chunk send attempts, ATT PDUs
	DEBUG                 // State machine transitions, descriptors
	INFO                  // Commands, connections, transfer start/complete
	WARN                  // Recoverable problems
	ERROR                 // Aborted transfers, crypto failures
)

// Fields is an alias so callers don't need to import logrus for structured records.
type Fields = logrus.Fields

var (
	currentLevel LogLevel = INFO
	mu           sync.RWMutex
	base         = newBase(os.Stdout)
)

func newBase(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	base.SetLevel(toLogrus(level))
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// ParseLevel converts a string to a LogLevel
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "trace"
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func toLogrus(level LogLevel) logrus.Level {
	switch level {
	case TRACE:
		return logrus.TraceLevel
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// TRACE is the most verbose level, so a record passes when it is at or above the
// configured level.
func enabled(level LogLevel) bool {
	return level >= GetLevel()
}

func entry(prefix string) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return logrus.NewEntry(base)
	}
	return base.WithField("component", prefix)
}

func log(level LogLevel, prefix, format string, args ...interface{}) {
	if !enabled(level) {
		return
	}
	entry(prefix).Log(toLogrus(level), fmt.Sprintf(format, args...))
}

// WithFields returns a structured entry tagged with the component prefix, for
// records that carry more than a formatted message.
func WithFields(prefix string, fields Fields) *logrus.Entry {
	return entry(prefix).WithFields(fields)
}

// Trace logs a trace message (per-chunk details, ATT PDUs)
func Trace(prefix, format string, args ...interface{}) {
	log(TRACE, prefix, format, args...)
}

// Debug logs a debug message
func Debug(prefix, format string, args ...interface{}) {
	log(DEBUG, prefix, format, args...)
}

// Info logs an info message (high-level events)
func Info(prefix, format string, args ...interface{}) {
	log(INFO, prefix, format, args...)
}

// Warn logs a warning message
func Warn(prefix, format string, args ...interface{}) {
	log(WARN, prefix, format, args...)
}

// Error logs an error message
func Error(prefix, format string, args ...interface{}) {
	log(ERROR, prefix, format, args...)
}

// ToJSON converts any value to a pretty-printed JSON string for logging
func ToJSON(v interface{}) string {
	if msg, ok := v.(proto.Message); ok {
		marshaler := protojson.MarshalOptions{
			Multiline:       true,
			Indent:          "  ",
			EmitUnpopulated: false,
		}
		jsonBytes, err := marshaler.Marshal(msg)
		if err != nil {
			return fmt.Sprintf("<error: %v>", err)
		}
		return string(jsonBytes)
	}

	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return string(jsonBytes)
}

// TraceJSON logs a trace message with a JSON representation
func TraceJSON(prefix, label string, v interface{}) {
	if !enabled(TRACE) {
		return
	}
	log(TRACE, prefix, "%s:\n%s", label, ToJSON(v))
}

// DebugJSON logs a debug message with a JSON representation
func DebugJSON(prefix, label string, v interface{}) {
	if !enabled(DEBUG) {
		return
	}
	log(DEBUG, prefix, "%s:\n%s", label, ToJSON(v))
}
