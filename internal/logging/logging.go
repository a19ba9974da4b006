// Package logging builds the process logger from the log section of the
// config.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/claude/eruna/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to stdout, to a rotating file, or to both.
// The returned closer releases the log file and must be closed on exit.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer) {
	out, closer := output(cfg, os.Stdout)
	return slog.New(handler(cfg, out)), closer
}

func output(cfg config.LogConfig, stdout io.Writer) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return stdout, nopCloser{}
	}

	name := cfg.File
	if !strings.HasSuffix(name, ".log") {
		name += ".log"
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	file := &lumberjack.Logger{
		Filename:   name,
		MaxSize:    maxSize, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	if cfg.Stdout {
		return io.MultiWriter(stdout, file), file
	}
	return file, file
}

func handler(cfg config.LogConfig, out io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// ParseLevel maps a level name to a slog level. Unknown names log at info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
