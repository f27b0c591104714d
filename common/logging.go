// Package common holds pieces shared by the unsealer binary and its packages:
// logger construction and the build version string.
package common

import (
	"log/slog"
	"os"
)

// LoggingOpts selects the handler and the base attributes for the process logger.
type LoggingOpts struct {
	// Debug lowers the level to slog.LevelDebug.
	Debug bool
	// JSON switches from the text handler to the JSON handler.
	JSON bool
	// Service is attached to every record as the "service" attribute when set.
	Service string
	// Version is attached to every record as the "version" attribute when set.
	Version string
}

// SetupLogger builds the process-wide *slog.Logger. Components receive children
// of this logger via With; nothing in the repository logs through a global.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}
