// Package logging wires log/slog to the console and to weekly rotating files.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/giygas/dosecurve-api/config"
)

type LoggingService struct {
	Logger *slog.Logger
	writer *RotatingLogger
}

var DefaultLoggingService *LoggingService

// InitLogger initializes the global logger with development defaults
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{
		LogDir:         logDir,
		Env:            config.EnvDevelopment,
		RetentionWeeks: 4,
		MaxFileSize:    100 * 1024 * 1024,
	})
}

// InitLoggerFromConfig initializes the global logger from the app configuration
func InitLoggerFromConfig(cfg *config.Config) {
	InitLoggerWithOptions(Options{
		LogDir:         cfg.LogDir,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
}

// InitLoggerWithOptions replaces the global logger, closing the previous file if any
func InitLoggerWithOptions(opts Options) {
	Close()

	logger, writer := SetupLogger(opts)
	DefaultLoggingService = &LoggingService{
		Logger: logger,
		writer: writer,
	}
	slog.SetDefault(logger)
}

// Close flushes and closes the rotating log file of the global logger
func Close() {
	if DefaultLoggingService != nil && DefaultLoggingService.writer != nil {
		_ = DefaultLoggingService.writer.Close()
		DefaultLoggingService.writer = nil
	}
}

// parseLogLevel maps LOG_LEVEL values to slog levels, defaulting to info
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel picks the console level. An explicit LOG_LEVEL wins,
// except under test where the console stays quiet unless verbose.
func GetConsoleLogLevel(env config.Environment, logLevel string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}

	if logLevel != "" {
		return parseLogLevel(logLevel)
	}

	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetFileLogLevel returns the level for the JSON file handler
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

func logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}
