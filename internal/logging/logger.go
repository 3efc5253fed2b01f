package logging

import (
	"log/slog"
	"os"
)

// New creates the process logger. JSON lines on stdout is what the
// supervisor's log collector expects from add-on containers.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Component tags a child logger with the subsystem it belongs to.
func Component(parent *slog.Logger, name string) *slog.Logger {
	return parent.With("component", name)
}
