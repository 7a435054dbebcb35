package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// parseLevel maps LOG_LEVEL values; unknown values report ok=false and fall back to info.
func parseLevel(s string) (lvl slog.Level, ok bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "info", "":
		return slog.LevelInfo, true
	}
	return slog.LevelInfo, false
}

// newLogHandler builds the handler for LOG_FORMAT: text (default), json or tint.
func newLogHandler(w io.Writer, format string, lvl slog.Level) slog.Handler {
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	case "tint":
		return tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.TimeOnly})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
}

// setupLogging installs the default logger. The returned func closes LOG_FILE if one was opened.
func setupLogging() (func(), error) {
	lvl, ok := parseLevel(os.Getenv("LOG_LEVEL"))
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closeFn, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}
	format := os.Getenv("LOG_FORMAT")
	slog.SetDefault(slog.New(newLogHandler(w, format, lvl)))
	if !ok {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
	return closeFn, nil
}
