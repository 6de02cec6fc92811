package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ParseLogLevel parses DEBUG, INFO, WARN (or WARNING) and ERROR, ignoring case.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LoggerConfig describes the process logger.
type LoggerConfig struct {
	Level  string
	Format string // "text" or "json"

	// File, when set, receives log output through a RotatingWriter.
	File       string
	MaxSizeMB  int64
	MaxBackups int

	// Output is used when File is empty; nil means stderr.
	Output io.Writer
}

// NewLogger builds a slog logger from cfg. The returned closer releases the
// log file and is a no-op for stream output.
func NewLogger(cfg LoggerConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	switch {
	case cfg.File != "":
		w, err := NewRotatingWriter(&RotationConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
		if err != nil {
			return nil, nil, err
		}
		out, closer = w, w
	case cfg.Output != nil:
		out = cfg.Output
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text", "":
		handler = slog.NewTextHandler(out, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FormatBytes formats bytes as a human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// ParseBytes parses sizes such as "512", "64KB", "16M" or "1.5GiB" using
// binary multiples.
func ParseBytes(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	v = strings.TrimSuffix(strings.TrimSuffix(v, "B"), "I")

	multiplier := int64(1)
	if n := len(v); n > 0 {
		if i := strings.IndexByte("KMGTP", v[n-1]); i >= 0 {
			multiplier = int64(1) << (10 * (i + 1))
			v = v[:n-1]
		}
	}

	num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid size: %s", s)
	}
	return int64(num * float64(multiplier)), nil
}
