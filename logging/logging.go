package logging

import (
	"io"
	"log/slog"
)

var globalLevel = &slog.LevelVar{}

// SetLevel changes the level of every TextHandler.
func SetLevel(level slog.Level) {
	globalLevel.Set(level)
}

// SetDefault makes a TextHandler writing to w the default slog handler.
func SetDefault(w io.Writer, level slog.Level) *slog.Logger {
	SetLevel(level)
	logger := slog.New(NewTextHandlerTo(w))
	slog.SetDefault(logger)
	return logger
}
