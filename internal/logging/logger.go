package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"synthbridge/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level string
	// Format is "console", "json", or "auto". Auto selects console output
	// when Console is a terminal.
	Format string
	// Console receives human-facing output. Defaults to stderr.
	Console io.Writer
	// LogFile, when set, additionally receives records as JSON.
	LogFile string
	// FileLevel filters the log file independently. Empty means Level.
	FileLevel   string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	addSource := opts.Development || level <= slog.LevelDebug

	format, err := resolveFormat(opts.Format, console)
	if err != nil {
		return nil, err
	}

	var primary slog.Handler
	switch format {
	case "json":
		primary = newJSONHandler(console, levelVar, addSource)
	default:
		primary = newPrettyHandler(console, levelVar, addSource)
	}

	var file slog.Handler
	if path := strings.TrimSpace(opts.LogFile); path != "" {
		w, err := openLogFile(path)
		if err != nil {
			return nil, err
		}
		fileLevel := levelVar
		if strings.TrimSpace(opts.FileLevel) != "" {
			fileLevel = new(slog.LevelVar)
			fileLevel.Set(parseLevel(opts.FileLevel))
		}
		file = newJSONHandler(w, fileLevel, opts.Development)
	}

	return slog.New(newTeeHandler(primary, file)), nil
}

// NewFromConfig creates a logger using application config defaults.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "auto"})
	}
	return New(Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		LogFile:   cfg.LogPath(),
		FileLevel: cfg.Logging.FileLevel,
	})
}

func resolveFormat(format string, w io.Writer) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "", "auto":
		if isTerminal(w) {
			return "console", nil
		}
		return "json", nil
	case "console", "json":
		return format, nil
	default:
		return "", fmt.Errorf("log format: unsupported value %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func openLogFile(path string) (io.Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
