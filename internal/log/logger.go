// Package log is the leveled logger used by the WingFC ground-side tooling and
// the supervisor loop.
//
// The real-time core never logs from inside a control cycle. Loggers are
// cheap to create per component:
//
//	logger := log.New("imu")
//	logger.WithField("samples", 1000).Info("gyro calibration complete")
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name. Unknown names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Fields are structured key/value pairs attached to a message.
type Fields map[string]interface{}

// Logger writes leveled messages with a component prefix.
type Logger struct {
	mu         sync.Mutex
	prefix     string
	writer     io.Writer
	level      Level
	timeFormat string
	fields     Fields
}

// Entry is a pending message carrying extra fields.
type Entry struct {
	logger *Logger
	fields Fields
}

var defaultLogger = New("wingfc")

// New creates a logger writing to stderr at INFO.
func New(prefix string) *Logger {
	return &Logger{
		prefix:     prefix,
		writer:     os.Stderr,
		level:      INFO,
		timeFormat: "2006-01-02 15:04:05.000",
		fields:     make(Fields),
	}
}

// Default returns the process-wide logger.
func Default() *Logger { return defaultLogger }

// SetLevel sets the minimum level that is written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the minimum level that is written.
func (l *Logger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetWriter redirects output, mostly for tests.
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// Named returns a child logger sharing the writer and level.
func (l *Logger) Named(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &Logger{
		prefix:     l.prefix + "." + prefix,
		writer:     l.writer,
		level:      l.level,
		timeFormat: l.timeFormat,
		fields:     make(Fields, len(l.fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	return child
}

// WithField returns an Entry with a single field.
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry with the given fields.
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

// WithError returns an Entry carrying the error text.
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", err.Error())
}

func (l *Logger) Debugf(msg string, args ...interface{}) { l.log(DEBUG, msg, args, nil) }
func (l *Logger) Infof(msg string, args ...interface{})  { l.log(INFO, msg, args, nil) }
func (l *Logger) Warnf(msg string, args ...interface{})  { l.log(WARN, msg, args, nil) }
func (l *Logger) Errorf(msg string, args ...interface{}) { l.log(ERROR, msg, args, nil) }

func (l *Logger) Debug(msg string) { l.log(DEBUG, msg, nil, nil) }
func (l *Logger) Info(msg string)  { l.log(INFO, msg, nil, nil) }
func (l *Logger) Warn(msg string)  { l.log(WARN, msg, nil, nil) }
func (l *Logger) Error(msg string) { l.log(ERROR, msg, nil, nil) }

// WithField adds another field to the entry.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	fields := make(Fields, len(e.fields)+1)
	for k, v := range e.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Entry{logger: e.logger, fields: fields}
}

func (e *Entry) Debugf(msg string, args ...interface{}) { e.logger.log(DEBUG, msg, args, e.fields) }
func (e *Entry) Infof(msg string, args ...interface{})  { e.logger.log(INFO, msg, args, e.fields) }
func (e *Entry) Warnf(msg string, args ...interface{})  { e.logger.log(WARN, msg, args, e.fields) }
func (e *Entry) Errorf(msg string, args ...interface{}) { e.logger.log(ERROR, msg, args, e.fields) }

func (e *Entry) Debug(msg string) { e.logger.log(DEBUG, msg, nil, e.fields) }
func (e *Entry) Info(msg string)  { e.logger.log(INFO, msg, nil, e.fields) }
func (e *Entry) Warn(msg string)  { e.logger.log(WARN, msg, nil, e.fields) }
func (e *Entry) Error(msg string) { e.logger.log(ERROR, msg, nil, e.fields) }

func (l *Logger) log(level Level, msg string, args []interface{}, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	merged := fields
	if len(l.fields) > 0 {
		merged = make(Fields, len(l.fields)+len(fields))
		for k, v := range l.fields {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	io.WriteString(l.writer, l.formatText(level, msg, merged))
}

// formatText renders "time [LEVEL] prefix: message {k=v, ...}".
func (l *Logger) formatText(level Level, msg string, fields Fields) string {
	var sb strings.Builder
	sb.WriteString(time.Now().Format(l.timeFormat))
	sb.WriteString(" [")
	sb.WriteString(fmt.Sprintf("%-5s", level.String()))
	sb.WriteString("] ")
	sb.WriteString(l.prefix)
	sb.WriteString(": ")
	sb.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprintf("%v", fields[k]))
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	return sb.String()
}

// Package-level helpers writing to the default logger.

func SetLevel(level Level)                     { defaultLogger.SetLevel(level) }
func SetWriter(w io.Writer)                    { defaultLogger.SetWriter(w) }
func Debugf(msg string, args ...interface{})   { defaultLogger.log(DEBUG, msg, args, nil) }
func Infof(msg string, args ...interface{})    { defaultLogger.log(INFO, msg, args, nil) }
func Warnf(msg string, args ...interface{})    { defaultLogger.log(WARN, msg, args, nil) }
func Errorf(msg string, args ...interface{})   { defaultLogger.log(ERROR, msg, args, nil) }
func WithField(key string, v interface{}) *Entry { return defaultLogger.WithField(key, v) }
func WithFields(fields Fields) *Entry            { return defaultLogger.WithFields(fields) }
