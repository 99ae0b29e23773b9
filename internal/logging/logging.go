// Package logging builds the structured loggers used by snapc.
//
// Log lines are JSON objects with the timestamp under "ts":
//
//	{"ts":"2026-01-15T10:30:00Z","level":"INFO","msg":"connected","component":"snapd-client","socket":"/run/snapd.socket"}
//
// Interactive runs log to stderr as text; a configured log file gets JSON
// lines and is rotated by size.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures a logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelWarn)
	Level slog.Level

	// JSON selects JSON lines instead of text output
	JSON bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: os.Stderr,
		Level:  slog.LevelWarn,
	}
}

// New creates a logger writing to cfg.Output.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// FileConfig describes a rotating log file.
type FileConfig struct {
	Path       string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
}

// Open returns a JSON logger backed by a rotating file, plus the closer for
// the file. An empty path logs text to stderr and the closer is a no-op.
func Open(fc FileConfig) (*slog.Logger, io.Closer, error) {
	if fc.Path == "" {
		return New(&Config{Output: os.Stderr, Level: fc.Level}), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(fc.Path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB, // megabytes
		MaxBackups: fc.MaxBackups,
	}
	return New(&Config{Output: w, Level: fc.Level, JSON: true}), w, nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
