// Package logger provides basic logging functionalities.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a simple interface for logging.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// defaultLogger is a Logger backed by a zap SugaredLogger.
type defaultLogger struct {
	level zap.AtomicLevel
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

// parseLevel maps "debug", "info", "warn", "error", "fatal" to a zap level.
// Anything else falls back to info.
func parseLevel(logLevel string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(logLevel)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func newDefaultLogger(logLevel string) *defaultLogger {
	level := zap.NewAtomicLevelAt(parseLevel(logLevel))
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &defaultLogger{level: level, base: base, sugar: base.Sugar()}
}

// NewLogger creates and configures a new Logger instance.
// loglevel could be "debug", "info", "warn", "error", "fatal"
func NewLogger(logLevel string) Logger {
	return newDefaultLogger(logLevel)
}

func (l *defaultLogger) Debug(args ...interface{})                 { l.sugar.Debug(args...) }
func (l *defaultLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *defaultLogger) Info(args ...interface{})                  { l.sugar.Info(args...) }
func (l *defaultLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *defaultLogger) Warn(args ...interface{})                  { l.sugar.Warn(args...) }
func (l *defaultLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *defaultLogger) Error(args ...interface{})                 { l.sugar.Error(args...) }
func (l *defaultLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *defaultLogger) Fatal(args ...interface{})                 { l.sugar.Fatal(args...) }
func (l *defaultLogger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

// Global std logger instance, initialized with default "info" settings.
var std = newDefaultLogger("info")

// SetGlobalLogLevel reconfigures the global std logger's level.
func SetGlobalLogLevel(logLevel string) {
	std.level.SetLevel(parseLevel(logLevel))
}

// Zap returns the structured logger behind the global std logger, for components
// that log with fields. It shares the global level.
func Zap() *zap.Logger {
	return std.base.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = std.base.Sync()
}

// Debug logs a debug message using the global std logger.
func Debug(args ...interface{}) {
	std.Debug(args...)
}

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

// Info logs an informational message using the global std logger.
func Info(args ...interface{}) {
	std.Info(args...)
}

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warn logs a warning.
func Warn(args ...interface{}) {
	std.Warn(args...)
}

// Warnf logs a warning with formatting.
func Warnf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	std.Error(args...)
}

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	std.Errorf(format, args...)
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	std.Fatal(args...)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	std.Fatalf(format, args...)
}
