package log

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var atom = zap.NewAtomicLevelAt(zapcore.WarnLevel)

func init() {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	// stdout carries command output, logs go to stderr
	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		atom,
	))

	zap.ReplaceGlobals(logger)
}

// Debug logs a debug message with optional key/value pairs.
func Debug(msg string, keysAndValues ...interface{}) {
	zap.S().Debugw(msg, keysAndValues...)
}

// Info logs an info message with optional key/value pairs.
func Info(msg string, keysAndValues ...interface{}) {
	zap.S().Infow(msg, keysAndValues...)
}

// Warn logs a warning message with optional key/value pairs.
func Warn(msg string, keysAndValues ...interface{}) {
	zap.S().Warnw(msg, keysAndValues...)
}

// Error logs an error message with optional key/value pairs.
func Error(msg string, keysAndValues ...interface{}) {
	zap.S().Errorw(msg, keysAndValues...)
}

// Fatal logs a fatal message and exits.
func Fatal(msg string, keysAndValues ...interface{}) {
	zap.S().Fatalw(msg, keysAndValues...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = zap.L().Sync()
}

// GetLevel returns the current log level.
func GetLevel() zapcore.Level {
	return atom.Level()
}

// SetLevel sets the log level by specifying a string which can be any of:
// ["DEBUG", "INFO", "WARNING", "ERROR", "FATAL"], case-insensitive.
func SetLevel(level string) error {
	switch strings.ToUpper(level) {
	case "DEBUG":
		atom.SetLevel(zapcore.DebugLevel)
	case "INFO":
		atom.SetLevel(zapcore.InfoLevel)
	case "WARNING", "WARN":
		atom.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		atom.SetLevel(zapcore.ErrorLevel)
	case "FATAL":
		atom.SetLevel(zapcore.FatalLevel)
	default:
		return fmt.Errorf("invalid log level string: %v", level)
	}

	return nil
}
