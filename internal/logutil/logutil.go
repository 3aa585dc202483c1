package logutil

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	logger  = log.NewWithOptions(os.Stderr, log.Options{Prefix: "autopost", ReportTimestamp: true, Level: log.InfoLevel})
	verbose bool
	mu      sync.RWMutex
)

// SetVerbose adjusts the global logging level.
func SetVerbose(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = enable
	if enable {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

// Verbose reports whether verbose logging is enabled.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetJSON switches between JSON lines (for cron and CI) and human-readable text.
func SetJSON(enable bool) {
	if enable {
		logger.SetFormatter(log.JSONFormatter)
	} else {
		logger.SetFormatter(log.TextFormatter)
	}
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Debugf logs a debug message when verbose logging is enabled.
func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Infof logs an informational message.
func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}

// Leveled adapts the global logger to key/value leveled logging interfaces
// such as retryablehttp.LeveledLogger.
func Leveled() LeveledLogger { return LeveledLogger{} }

// LeveledLogger forwards structured messages to the global logger.
type LeveledLogger struct{}

// Error logs msg at error level.
func (LeveledLogger) Error(msg string, keysAndValues ...any) { logger.Error(msg, keysAndValues...) }

// Warn logs msg at warn level.
func (LeveledLogger) Warn(msg string, keysAndValues ...any) { logger.Warn(msg, keysAndValues...) }

// Info logs msg at debug level.
func (LeveledLogger) Info(msg string, keysAndValues ...any) { logger.Debug(msg, keysAndValues...) }

// Debug logs msg at debug level.
func (LeveledLogger) Debug(msg string, keysAndValues ...any) { logger.Debug(msg, keysAndValues...) }
