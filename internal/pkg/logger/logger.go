// Package logger emits structured JSON log lines with PII redaction for
// contact fields, so delivery logs can be shipped without leaking client
// phone numbers or emails.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// Logger writes one JSON object per line to stderr.
type Logger struct {
	level     Level
	mu        sync.Mutex
	redactPII bool
}

var std = &Logger{level: INFO, redactPII: true}

// SetLevel sets the minimum level for the package-level logger.
func SetLevel(l Level) { std.level = l }

// SetRedactPII toggles contact-field redaction for the package-level logger.
func SetRedactPII(on bool) { std.redactPII = on }

// Debug logs at DEBUG with alternating key/value fields.
func Debug(msg string, fields ...any) { std.log(DEBUG, msg, fields...) }

// Info logs at INFO with alternating key/value fields.
func Info(msg string, fields ...any) { std.log(INFO, msg, fields...) }

// Warn logs at WARN with alternating key/value fields.
func Warn(msg string, fields ...any) { std.log(WARN, msg, fields...) }

// Error logs at ERROR with alternating key/value fields.
func Error(msg string, fields ...any) { std.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...any) {
	if level < l.level {
		return
	}
	entry := map[string]any{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if l.redactPII {
			val = redactField(strings.ToLower(key), val)
		}
		entry[key] = val
	}
	data, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(os.Stderr, string(data))
	l.mu.Unlock()
}
