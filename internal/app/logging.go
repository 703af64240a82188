package app

import (
	"io"
	"log/slog"
)

// newLogger writes text records to w. Verbose runs log at debug level;
// otherwise only warnings and errors reach stderr.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With("app", "gridcal")
}
