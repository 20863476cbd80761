// Package logger writes agentflow run output to the console and to per-run
// log files. Both loggers are safe for concurrent use.
package logger

import (
	"fmt"
	"strings"
	"time"
)

// Level orders log severities.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "INFO"
}

// ParseLevel maps trace|debug|info|warn|error (any case) to a Level.
// Anything else is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
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

// ValidLevel reports whether s names a level.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration renders d as 5s, 1m30s or 2h15m.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		h := d / time.Hour
		m := (d % time.Hour) / time.Minute
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	case d >= time.Minute:
		m := d / time.Minute
		s := (d % time.Minute) / time.Second
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	case d > 0 && d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}
