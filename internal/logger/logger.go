// Package logger initializes the process-wide slog logger. Components
// receive a child logger via log.With rather than reaching for the global.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

var levelVar = new(slog.LevelVar)

// L is the root logger. Valid after Init; defaults to a text handler at
// info level so early startup logs are never lost.
var L = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}))

// Init configures the root logger from config values. format is "text" or
// "json"; unknown values fall back to text.
func Init(level, format string) {
	levelVar.Set(parseLevel(level))

	opts := &slog.HandlerOptions{Level: levelVar}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	L = slog.New(handler)
	slog.SetDefault(L)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
