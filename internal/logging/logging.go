// Package logging writes JSON structured logs in an OTEL-compatible shape.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log severity level.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelFatal Level = "FATAL"
)

// severityNumbers maps OTEL severity text to OTEL severity number.
// See https://opentelemetry.io/docs/specs/otel/logs/data-model/#severity-fields
var severityNumbers = map[Level]int{
	LevelDebug: 5,
	LevelInfo:  9,
	LevelWarn:  13,
	LevelError: 17,
	LevelFatal: 21,
}

// SeverityNumber returns the OTEL severity number for a level.
func SeverityNumber(level Level) int {
	return severityNumbers[level]
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LogHook is called for every emitted entry, allowing secondary sinks
// (e.g. OTLP log export) without this package importing them.
type LogHook func(level Level, msg string, attrs map[string]interface{})

// Logger writes one JSON object per line.
type Logger struct {
	mu       sync.Mutex
	output   io.Writer
	resource map[string]string
	hook     LogHook
	minLevel atomic.Int32
}

// LogEntry is a single log line.
type LogEntry struct {
	Timestamp      string                 `json:"Timestamp"`
	SeverityText   string                 `json:"SeverityText"`
	SeverityNumber int                    `json:"SeverityNumber"`
	Body           string                 `json:"Body"`
	Attributes     map[string]interface{} `json:"Attributes,omitempty"`
	Resource       map[string]string      `json:"Resource,omitempty"`
}

var defaultLogger = newLogger(os.Stdout)

func newLogger(w io.Writer) *Logger {
	l := &Logger{output: w}
	l.minLevel.Store(int32(severityNumbers[LevelInfo]))
	return l
}

// SetOutput sets the output writer for the default logger.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.output = w
}

// SetResource sets the resource attributes (service.name, service.version, ...)
// attached to every entry. Called once at startup.
func SetResource(resource map[string]string) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.resource = resource
}

// SetHook registers a hook that is called for every emitted entry.
func SetHook(hook LogHook) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.hook = hook
}

// SetLevel drops entries below level. FATAL is always written.
func SetLevel(level Level) {
	defaultLogger.minLevel.Store(int32(severityNumbers[level]))
}

// Enabled reports whether entries at level are written by the default logger.
func Enabled(level Level) bool {
	return defaultLogger.enabled(level)
}

func (l *Logger) enabled(level Level) bool {
	return int32(severityNumbers[level]) >= l.minLevel.Load()
}

func (l *Logger) log(level Level, msg string, attrs map[string]interface{}) {
	if level != LevelFatal && !l.enabled(level) {
		return
	}
	entry := LogEntry{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		SeverityText:   string(level),
		SeverityNumber: severityNumbers[level],
		Body:           msg,
		Attributes:     attrs,
	}

	l.mu.Lock()
	entry.Resource = l.resource
	hook := l.hook
	data, err := json.Marshal(entry)
	if err != nil {
		// Attributes that cannot be marshalled are replaced by their string form.
		entry.Attributes = stringify(attrs)
		data, _ = json.Marshal(entry)
	}
	data = append(data, '\n')
	_, _ = l.output.Write(data)
	l.mu.Unlock()

	// outside the lock: hooks may log themselves
	if hook != nil {
		hook(level, msg, attrs)
	}
}

func stringify(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func fields(f []map[string]interface{}) map[string]interface{} {
	if len(f) > 0 {
		return f[0]
	}
	return nil
}

// Debug logs a debug level message.
func Debug(msg string, f ...map[string]interface{}) {
	defaultLogger.log(LevelDebug, msg, fields(f))
}

// Info logs an info level message.
func Info(msg string, f ...map[string]interface{}) {
	defaultLogger.log(LevelInfo, msg, fields(f))
}

// Warn logs a warning level message.
func Warn(msg string, f ...map[string]interface{}) {
	defaultLogger.log(LevelWarn, msg, fields(f))
}

// Error logs an error level message.
func Error(msg string, f ...map[string]interface{}) {
	defaultLogger.log(LevelError, msg, fields(f))
}

// Fatal logs a fatal level message and exits.
func Fatal(msg string, f ...map[string]interface{}) {
	defaultLogger.log(LevelFatal, msg, fields(f))
	os.Exit(1)
}

// F builds a fields map from alternating keys and values.
// Non-string keys and a trailing key without value are ignored.
func F(keyvals ...interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		if key, ok := keyvals[i].(string); ok {
			out[key] = keyvals[i+1]
		}
	}
	return out
}

// Sampler lets at most one event through per interval. Hot paths (queue
// admission, spool writes) use it so a flood of drops produces one WARN
// line per interval instead of one per record.
type Sampler struct {
	interval time.Duration
	last     atomic.Int64
	skipped  atomic.Int64
}

// NewSampler returns a Sampler allowing one event per interval.
func NewSampler(interval time.Duration) *Sampler {
	return &Sampler{interval: interval}
}

// Allow reports whether the caller should log now. When it returns true,
// suppressed is the number of events skipped since the previous allowed one.
func (s *Sampler) Allow() (suppressed int64, ok bool) {
	now := time.Now().UnixNano()
	last := s.last.Load()
	if last != 0 && now-last < int64(s.interval) {
		s.skipped.Add(1)
		return 0, false
	}
	if !s.last.CompareAndSwap(last, now) {
		s.skipped.Add(1)
		return 0, false
	}
	return s.skipped.Swap(0), true
}
