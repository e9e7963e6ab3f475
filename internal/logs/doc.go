// Package logs reads the JSON log file written by synthbridge.
//
// Tail returns the last N lines (optionally only those belonging to one run)
// and can wait for new lines, which backs `synthbridge logs --follow`.
package logs
