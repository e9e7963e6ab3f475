package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler writes records to the console handler and the JSON log file
// handler. Each side applies its own level, so the file can keep debug
// records (such as the full tool argv) while the terminal stays quiet.
type teeHandler struct {
	console slog.Handler
	file    slog.Handler
}

func newTeeHandler(console, file slog.Handler) slog.Handler {
	switch {
	case console == nil && file == nil:
		return NoopHandler{}
	case file == nil:
		return console
	case console == nil:
		return file
	}
	return &teeHandler{console: console, file: file}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

// Handle writes the file first. A failing log file never suppresses console
// output; both errors are returned.
func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var fileErr, consoleErr error
	if h.file.Enabled(ctx, record.Level) {
		fileErr = h.file.Handle(ctx, record.Clone())
	}
	if h.console.Enabled(ctx, record.Level) {
		consoleErr = h.console.Handle(ctx, record)
	}
	return errors.Join(fileErr, consoleErr)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{console: h.console.WithAttrs(attrs), file: h.file.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{console: h.console.WithGroup(name), file: h.file.WithGroup(name)}
}
