// Package logger holds the process-wide structured logger.
package logger

import (
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global logger instance. Nil until Init.
	Logger *log.Logger
)

// Config holds logger configuration
type Config struct {
	Debug bool
	// LogDir enables a rotating file under LogDir/obligation-engine.log.
	// Empty means stderr only.
	LogDir string
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var writer io.Writer = os.Stderr

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return err
		}
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "obligation-engine.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stderr, fileWriter)
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "obligations",
	})

	return nil
}

// StandardLog adapts the logger for libraries that want a *log.Logger,
// such as chi's request logger. Discards output before Init.
func StandardLog() *stdlog.Logger {
	if Logger == nil {
		return stdlog.New(io.Discard, "", 0)
	}
	return Logger.StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel})
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
