// Package logger provides a simple logging interface for netmon components.
// It allows packages to log debug, info, warn, and error messages without
// being coupled to a specific logging implementation. The production
// implementation is backed by zap.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Options configures the zap backend.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File, when set, receives JSON-encoded log lines in addition to stderr.
	File string
}

// zapLogger implements Logger on top of a zap SugaredLogger.
type zapLogger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewZap wraps an existing zap logger. The prefix is prepended to all
// messages (e.g., "[monitor]" or "[bootstrap]").
func NewZap(base *zap.Logger, prefix string) Logger {
	return &zapLogger{prefix: prefix, sugar: base.Sugar()}
}

// Build creates the root zap logger from options. Console output goes to
// stderr; the optional file gets structured JSON.
func Build(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stderr),
			level,
		),
	}

	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(file),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

func (l *zapLogger) msg(format string) string {
	if l.prefix == "" {
		return format
	}
	return l.prefix + " " + format
}

func (l *zapLogger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(l.msg(format), args...)
}

func (l *zapLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(l.msg(format), args...)
}

func (l *zapLogger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(l.msg(format), args...)
}

func (l *zapLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(l.msg(format), args...)
}

// NewEnvLogger creates a logger that respects the NETMON_DEBUG environment
// variable: debug messages are only emitted when it is set.
func NewEnvLogger(prefix string) Logger {
	level := "info"
	if os.Getenv("NETMON_DEBUG") != "" {
		level = "debug"
	}
	base, err := Build(Options{Level: level})
	if err != nil {
		base = zap.NewNop()
	}
	return NewZap(base, prefix)
}

// WithPrefix derives a logger with an extra prefix when the underlying
// implementation supports it. Other loggers are returned unchanged.
func WithPrefix(l Logger, prefix string) Logger {
	switch v := l.(type) {
	case *zapLogger:
		p := prefix
		if v.prefix != "" {
			p = v.prefix + " " + prefix
		}
		return &zapLogger{prefix: p, sugar: v.sugar}
	case *BufferLogger:
		return &prefixed{prefix: prefix, next: v}
	case *prefixed:
		return &prefixed{prefix: v.prefix + " " + prefix, next: v.next}
	default:
		return l
	}
}

// prefixed decorates another logger with a message prefix.
type prefixed struct {
	prefix string
	next   Logger
}

func (p *prefixed) Debug(format string, args ...interface{}) {
	p.next.Debug(p.prefix+" "+format, args...)
}
func (p *prefixed) Info(format string, args ...interface{}) {
	p.next.Info(p.prefix+" "+format, args...)
}
func (p *prefixed) Warn(format string, args ...interface{}) {
	p.next.Warn(p.prefix+" "+format, args...)
}
func (p *prefixed) Error(format string, args ...interface{}) {
	p.next.Error(p.prefix+" "+format, args...)
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
// Safe for concurrent use; monitor loops log from several goroutines.
type BufferLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		Messages: make([]LogMessage, 0),
	}
}

func (l *BufferLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Contains returns true if any message at the given level contains substr.
func (l *BufferLogger) Contains(level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if m.Level == level && strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the captured messages.
func (l *BufferLogger) Snapshot() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.Messages))
	copy(out, l.Messages)
	return out
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = l.Messages[:0]
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewEnvLogger("")
)

// Default returns the default logger for the package.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger for the package.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
