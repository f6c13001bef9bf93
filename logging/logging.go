// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	// File is appended to in addition to stdout. Empty disables it.
	File        string
	DedupWindow time.Duration
	Deny        string
	Level       string
}

// Setup builds a text logger writing to stdout and the optional log file
// through a de-duplicating Writer, installs it as the slog and log default
// and returns it with a closer for the file.
func Setup(opts Options) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			log.Printf("WARN creating log dir for %q: %v", opts.File, err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("WARN opening LOG_FILE=%q: %v", opts.File, err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
			closer = f
		}
	}

	filter := NewWriter(out, opts.DedupWindow, opts.Deny)
	logger := slog.New(slog.NewTextHandler(filter, &slog.HandlerOptions{Level: parseLevel(opts.Level)}))
	slog.SetDefault(logger)

	logger.Info("logging configured", "file", opts.File, "dedup", opts.DedupWindow, "deny", opts.Deny)
	return logger, closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
