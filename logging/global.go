// Package logging provides the slog setup shared by the pipeline and the viewer server
package logging

import (
	"log/slog"
	"os"
	"testing"

	"github.com/giygas/ndc-unii/config"
)

// LoggingService owns the process logger and its rotating file, if any
type LoggingService struct {
	Logger   *slog.Logger
	rotating *RotatingLogger
}

// DefaultLoggingService is used by the package-level helpers
var DefaultLoggingService *LoggingService

// InitLogger initializes a console-only logger, plus a rotating file when logDir is set
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{LogDir: logDir, Env: config.EnvDevelopment, Level: "info"})
}

// InitLoggerWithOptions replaces the global logger, closing the previous file if there was one
func InitLoggerWithOptions(opts Options) {
	Close()

	logger, rotating := SetupLogger(opts)
	DefaultLoggingService = &LoggingService{
		Logger:   logger,
		rotating: rotating,
	}
	slog.SetDefault(logger)
}

// InitFromConfig initializes the global logger from the application config
func InitFromConfig(cfg *config.Config, verbose bool) {
	InitLoggerWithOptions(Options{
		LogDir:         cfg.LogDir,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		Verbose:        verbose,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
}

// Close flushes and closes the rotating file of the global logger
func Close() {
	if DefaultLoggingService == nil || DefaultLoggingService.rotating == nil {
		return
	}
	if err := DefaultLoggingService.rotating.Close(); err != nil {
		fallback(slog.LevelWarn).Warn("Failed to close log file", "error", err)
	}
	DefaultLoggingService.rotating = nil
}

// ResetForTest installs a fresh global logger for the duration of a test
func ResetForTest(t *testing.T, logDir string, env config.Environment, level string, retentionWeeks int, maxFileSize int64) {
	t.Helper()
	InitLoggerWithOptions(Options{
		LogDir:         logDir,
		Env:            env,
		Level:          level,
		RetentionWeeks: retentionWeeks,
		MaxFileSize:    maxFileSize,
	})
	t.Cleanup(func() {
		Close()
		DefaultLoggingService = nil
	})
}

func fallback(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func current(level slog.Level) *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return fallback(level)
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	current(slog.LevelInfo).Info(msg, args...)
}

func Error(msg string, args ...any) {
	current(slog.LevelError).Error(msg, args...)
}

func Warn(msg string, args ...any) {
	current(slog.LevelWarn).Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	current(slog.LevelDebug).Debug(msg, args...)
}
