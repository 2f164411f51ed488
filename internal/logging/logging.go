package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Format string // "json" (default) or "text"
	Level  string // debug, info (default), warn, error
	File   string // when set, logs go to a rotated file instead of stdout
	MaxAge int    // days to keep rotated files
}

// Init sets a JSON (default) or text slog handler based on the provided options.
func Init(service string, opts Options) *slog.Logger {
	logger := New(service, output(opts), opts)
	slog.SetDefault(logger)

	format := normalize(opts.Format)
	if format != "" && format != "json" && format != "text" {
		logger.Warn("unknown log format, defaulting to json", "format", format)
	}
	return logger
}

// New builds a logger writing to w without touching the process default.
func New(service string, w io.Writer, opts Options) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	switch normalize(opts.Format) {
	case "text":
		handler = slog.NewTextHandler(w, hopts)
	default:
		handler = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(handler).With("service", service)
}

func ParseLevel(s string) slog.Level {
	switch normalize(s) {
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

func output(opts Options) io.Writer {
	if opts.File == "" {
		return os.Stdout
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 30
	}
	return &lumberjack.Logger{
		Filename:  opts.File,
		MaxSize:   100, // MB
		MaxAge:    maxAge,
		LocalTime: true,
		Compress:  true,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
