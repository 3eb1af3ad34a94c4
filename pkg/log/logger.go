package log

import (
	"io"
	"log/slog"
	"os"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New constructs a JSON slog.Logger preconfigured at info level
func New(service, version string) *slog.Logger {
	return NewWithLevel(service, version, slog.LevelInfo)
}

// NewWithLevel constructs a JSON slog.Logger at the provided level. Output
// goes to stderr because stdout carries command results
func NewWithLevel(service, version string, lvl slog.Level) *slog.Logger {
	return NewWithWriter(os.Stderr, service, version, lvl)
}

// NewWithWriter constructs a JSON slog.Logger writing to w
func NewWithWriter(
	w io.Writer, service, version string, lvl slog.Level,
) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})

	return slog.New(handler).With(
		slog.String("service", service),
		slog.String("version", version))
}

// ParseLevel maps a level name to a slog.Level, falling back to info
func ParseLevel(name string) slog.Level {
	if lvl, ok := levels[name]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// IsLevel reports whether name is a recognized level
func IsLevel(name string) bool {
	_, ok := levels[name]
	return ok
}
