package common

import (
	"io"
	"log/slog"
	"os"
)

// LoggingOpts selects the handler and static attributes of the process logger.
type LoggingOpts struct {
	Debug   bool
	JSON    bool
	Service string
	Version string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// SetupLogger builds a slog logger from the options. Service and Version are
// attached to every record when set.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
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
