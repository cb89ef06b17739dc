// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package observability builds the structured logger and Prometheus metrics
// shared by every pipeline stage.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `mapstructure:"level"`

	// Format is the output format: json, console, or pretty.
	Format string `mapstructure:"format"`

	// Output is stdout or stderr.
	Output string `mapstructure:"output"`

	// TimeFormat is the timestamp layout.
	TimeFormat string `mapstructure:"time_format"`
}

// DefaultLoggingConfig logs human-readable lines to stderr so stdout stays
// free for command output.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a zerolog logger from cfg.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		out = os.Stdout
	default:
		out = os.Stderr
	}
	return newLogger(cfg, out)
}

func newLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	return zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(cfg.Level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// WithRunContext tags a logger with the run identifier and subject.
func WithRunContext(logger zerolog.Logger, runID, subject string) zerolog.Logger {
	return logger.With().
		Str("run_id", runID).
		Str("subject", subject).
		Logger()
}

// WithPaperContext tags a logger with paper identity fields.
func WithPaperContext(logger zerolog.Logger, primaryID, source string) zerolog.Logger {
	return logger.With().
		Str("primary_id", primaryID).
		Str("source", source).
		Logger()
}
