package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelTags = [...]string{
	LevelDebug: "[DEBUG] ",
	LevelInfo:  "[INFO] ",
	LevelWarn:  "[WARN] ",
	LevelError: "[ERROR] ",
}

var (
	level     atomic.Int32
	levelOnce sync.Once
)

// ParseLevel converts a level name into a LogLevel. Unknown names map to
// LevelInfo and ok is false.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// levelFromEnv reads DEBUG first, then LOG_LEVEL.
func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	l, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	return l
}

func ensureLevel() {
	levelOnce.Do(func() { level.Store(int32(levelFromEnv())) })
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	ensureLevel()
	return LogLevel(level.Load())
}

// SetLevel overrides the level read from the environment.
func SetLevel(l LogLevel) {
	ensureLevel()
	level.Store(int32(l))
}

func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logf(l LogLevel, format string, args ...interface{}) {
	if GetLevel() <= l {
		log.Printf(levelTags[l]+format, args...)
	}
}

// Debug logs only when LOG_LEVEL=debug or DEBUG is truthy.
func Debug(format string, args ...interface{}) { logf(LevelDebug, format, args...) }

func Info(format string, args ...interface{}) { logf(LevelInfo, format, args...) }

func Warn(format string, args ...interface{}) { logf(LevelWarn, format, args...) }

func Error(format string, args ...interface{}) { logf(LevelError, format, args...) }

// Fatal logs regardless of level and exits with status 1.
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf prints regardless of level, for startup banners.
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Prefixed writes leveled messages tagged with a fixed prefix, e.g. a job id.
type Prefixed struct {
	prefix string
}

// WithPrefix returns a logger that tags every message with "[prefix] ".
func WithPrefix(prefix string) Prefixed {
	return Prefixed{prefix: "[" + prefix + "] "}
}

func (p Prefixed) Debug(format string, args ...interface{}) {
	logf(LevelDebug, p.prefix+format, args...)
}

func (p Prefixed) Info(format string, args ...interface{}) {
	logf(LevelInfo, p.prefix+format, args...)
}

func (p Prefixed) Warn(format string, args ...interface{}) {
	logf(LevelWarn, p.prefix+format, args...)
}

func (p Prefixed) Error(format string, args ...interface{}) {
	logf(LevelError, p.prefix+format, args...)
}

func (l LogLevel) String() string {
	if l >= LevelDebug && l <= LevelError {
		return strings.ToLower(strings.Trim(levelTags[l], "[] "))
	}
	return fmt.Sprintf("unknown(%d)", l)
}
