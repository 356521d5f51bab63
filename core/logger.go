package core

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel controls which messages a JSONLogger emits.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel maps a config string to a LogLevel. Unknown values
// fall back to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
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

// JSONLogger writes one JSON object per line. It is safe for
// concurrent use from multiple stages.
type JSONLogger struct {
	mu    sync.Mutex
	out   io.Writer
	level LogLevel
}

// NewJSONLogger creates a logger writing to stderr.
func NewJSONLogger(level LogLevel) *JSONLogger {
	return &JSONLogger{out: os.Stderr, level: level}
}

// NewJSONLoggerWithWriter creates a logger with a custom sink (tests).
func NewJSONLoggerWithWriter(out io.Writer, level LogLevel) *JSONLogger {
	return &JSONLogger{out: out, level: level}
}

func (l *JSONLogger) Info(msg string, fields map[string]interface{}) {
	l.log(LevelInfo, "info", msg, fields)
}
func (l *JSONLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LevelError, "error", msg, fields)
}
func (l *JSONLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(LevelWarn, "warn", msg, fields)
}
func (l *JSONLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(LevelDebug, "debug", msg, fields)
}

func (l *JSONLogger) log(level LogLevel, name, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	entry := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["level"] = name
	entry["msg"] = msg
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		// Fields with unmarshalable values degrade to the message only
		data, _ = json.Marshal(map[string]interface{}{
			"level": name,
			"msg":   msg,
			"time":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}
