package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level defines the log level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String 返回日志级别名称
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

var (
	currentLevel = InfoLevel
	mu           sync.RWMutex
	logger       = log.New(os.Stderr, "", log.LstdFlags)
)

// ParseLevel 将字符串解析为日志级别，未知值回落到 InfoLevel
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// SetLevel sets the global log level
func SetLevel(levelStr string) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = ParseLevel(levelStr)
}

// GetLevel returns the global log level
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetOutput sets the output destination for the logger
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// Entry carries key/value fields that are appended to every message it logs.
// Entries are immutable; With returns a copy.
type Entry struct {
	fields string
}

// With returns an Entry carrying the given key/value pairs.
func With(kv ...any) Entry {
	return Entry{}.With(kv...)
}

// With returns a copy of e extended with the given key/value pairs.
// An odd trailing key gets the value MISSING.
func (e Entry) With(kv ...any) Entry {
	if len(kv)%2 != 0 {
		kv = append(kv, "MISSING")
	}
	var b strings.Builder
	b.WriteString(e.fields)
	for i := 0; i < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return Entry{fields: b.String()}
}

func (e Entry) Debugf(format string, v ...any) {
	if shouldLog(DebugLevel) {
		output(DebugLevel, fmt.Sprintf(format, v...)+e.fields)
	}
}

func (e Entry) Infof(format string, v ...any) {
	if shouldLog(InfoLevel) {
		output(InfoLevel, fmt.Sprintf(format, v...)+e.fields)
	}
}

func (e Entry) Warnf(format string, v ...any) {
	if shouldLog(WarnLevel) {
		output(WarnLevel, fmt.Sprintf(format, v...)+e.fields)
	}
}

func (e Entry) Errorf(format string, v ...any) {
	if shouldLog(ErrorLevel) {
		output(ErrorLevel, fmt.Sprintf(format, v...)+e.fields)
	}
}

// Debug logs a message at DebugLevel
func Debug(v ...any) {
	if shouldLog(DebugLevel) {
		output(DebugLevel, fmt.Sprint(v...))
	}
}

// Debugf logs a formatted message at DebugLevel
func Debugf(format string, v ...any) {
	if shouldLog(DebugLevel) {
		output(DebugLevel, fmt.Sprintf(format, v...))
	}
}

// Info logs a message at InfoLevel
func Info(v ...any) {
	if shouldLog(InfoLevel) {
		output(InfoLevel, fmt.Sprint(v...))
	}
}

// Infof logs a formatted message at InfoLevel
func Infof(format string, v ...any) {
	if shouldLog(InfoLevel) {
		output(InfoLevel, fmt.Sprintf(format, v...))
	}
}

// Warn logs a message at WarnLevel
func Warn(v ...any) {
	if shouldLog(WarnLevel) {
		output(WarnLevel, fmt.Sprint(v...))
	}
}

// Warnf logs a formatted message at WarnLevel
func Warnf(format string, v ...any) {
	if shouldLog(WarnLevel) {
		output(WarnLevel, fmt.Sprintf(format, v...))
	}
}

// Error logs a message at ErrorLevel
func Error(v ...any) {
	if shouldLog(ErrorLevel) {
		output(ErrorLevel, fmt.Sprint(v...))
	}
}

// Errorf logs a formatted message at ErrorLevel
func Errorf(format string, v ...any) {
	if shouldLog(ErrorLevel) {
		output(ErrorLevel, fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted message at FatalLevel and exits
func Fatalf(format string, v ...any) {
	output(FatalLevel, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func shouldLog(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return level >= currentLevel
}

func output(level Level, msg string) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Output(3, fmt.Sprintf("[%s] %s", level, msg))
}
