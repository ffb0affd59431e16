// Package logger provides the leveled logging utility used throughout the batch framework.
// Messages are written through a shared zap logger whose level and encoding can be changed at runtime.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for fatal error messages that cause application termination.
	LevelFatal
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

func init() {
	Configure("console", os.Stderr)
}

// Configure rebuilds the underlying logger with the given encoding ("console" or "json")
// and output. The current level is preserved.
func Configure(format string, w io.Writer) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	base = l
	sugar = l.Sugar()
	mu.Unlock()
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// "SILENT" suppresses everything below FATAL. Unknown values fall back to INFO.
func SetLogLevel(lvl string) {
	switch strings.ToUpper(lvl) {
	case "DEBUG":
		level.SetLevel(zapcore.DebugLevel)
	case "INFO", "":
		level.SetLevel(zapcore.InfoLevel)
	case "WARN":
		level.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		level.SetLevel(zapcore.ErrorLevel)
	case "FATAL", "SILENT":
		level.SetLevel(zapcore.FatalLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
		Warnf("Unknown log level '%s' specified. Defaulting to INFO level.", lvl)
	}
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	switch level.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.InfoLevel:
		return LevelInfo
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelFatal
	}
}

// Zap returns the underlying zap logger, for libraries that accept one.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	current().Infof(format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

// Fatalf formats and outputs a FATAL level log message, then terminates the program.
func Fatalf(format string, v ...interface{}) {
	current().Fatalf(format, v...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	if err := current().Sync(); err != nil {
		// stderr/stdout cannot be fsync'ed on most platforms; that is not a failure.
		if strings.Contains(err.Error(), "invalid argument") || strings.Contains(err.Error(), "inappropriate ioctl") {
			return nil
		}
		return fmt.Errorf("failed to sync logger: %w", err)
	}
	return nil
}
