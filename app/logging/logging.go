package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a text slog.Logger writing to stdout. Debug lowers the level
// from Info to Debug.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// Setup builds the logger and installs it as the slog default.
func Setup(debug bool) *slog.Logger {
	logger := New(debug)
	slog.SetDefault(logger)
	return logger
}
