// Package logging assembles structured slog loggers and formatting helpers used
// across synthbridge.
//
// It owns the console and JSON handlers, picks between them on terminal
// detection when the format is "auto", and can tee records into a JSON log
// file. Context helpers tag log lines with run IDs, tool names, and stages so
// every line from one invocation can be grouped. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
