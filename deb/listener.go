package deb

import (
	"context"
	"log/slog"
)

// Listener receives human readable progress messages while a package is
// built. Implementations must not block for long; their return values are
// never inspected.
type Listener interface {
	Info(msg string)
	Warning(msg string)
}

// NopListener discards every message.
type NopListener struct{}

func (NopListener) Info(string)    {}
func (NopListener) Warning(string) {}

// LogListener forwards messages to a structured logger.
type LogListener struct {
	Logger *slog.Logger
}

// NewLogListener returns a Listener writing to logger, or to slog.Default when
// logger is nil.
func NewLogListener(logger *slog.Logger) *LogListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogListener{Logger: logger}
}

func (l *LogListener) Info(msg string) {
	l.Logger.Log(context.Background(), slog.LevelInfo, msg)
}

func (l *LogListener) Warning(msg string) {
	l.Logger.Log(context.Background(), slog.LevelWarn, msg)
}
