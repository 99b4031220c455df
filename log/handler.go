// Package log builds the host's slog logger and the sink guest log messages
// are written to.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// HandlerOption configures the logger built by NewLogger.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	writer    io.Writer
	format    string
	level     slog.Level
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		writer: os.Stderr,
		format: FormatText,
		level:  slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithFormat selects FormatText or FormatJSON.
func WithFormat(format string) HandlerOption {
	return func(c *handlerConfig) {
		c.format = format
	}
}

// WithWriter sets where records are written (default: stderr).
func WithWriter(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		c.writer = w
	}
}

// NewLogger creates a logger with the given options.
func NewLogger(opts ...HandlerOption) (*slog.Logger, error) {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	hopts := &slog.HandlerOptions{Level: cfg.level, AddSource: cfg.addSource}
	switch cfg.format {
	case FormatText, "":
		return slog.New(slog.NewTextHandler(cfg.writer, hopts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(cfg.writer, hopts)), nil
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.format)
	}
}

// ParseLevel maps "debug", "info", "warn" or "error" onto a slog level.
// The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log: unknown level %q", s)
	}
}
