package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArguments   = errors.New("invalid arguments")
	ErrMissingEnvironment = errors.New("missing environment")
	ErrNotSupported       = errors.New("not supported")
	ErrExternalTool       = errors.New("external tool failure")
	ErrIO                 = errors.New("io failure")
)

// ToolFailure reports a nonzero exit from an external binary. It matches
// ErrExternalTool under errors.Is.
type ToolFailure struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolFailure) Error() string {
	tool := strings.TrimSpace(e.Tool)
	if tool == "" {
		tool = "external tool"
	}
	msg := fmt.Sprintf("%s: %s exited with code %d", ErrExternalTool, tool, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + lastLine(stderr)
	}
	return msg
}

// Is lets errors.Is(err, ErrExternalTool) match tool failures.
func (e *ToolFailure) Is(target error) bool {
	return target == ErrExternalTool
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a stable label for the error's marker, used when persisting
// run outcomes. Unclassified errors report "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArguments):
		return "invalid_arguments"
	case errors.Is(err, ErrMissingEnvironment):
		return "missing_environment"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrExternalTool):
		return "external_tool_failure"
	case errors.Is(err, ErrIO):
		return "io_failure"
	default:
		return "unknown"
	}
}

// AsToolFailure extracts the structured tool failure from err, if any.
func AsToolFailure(err error) (*ToolFailure, bool) {
	var failure *ToolFailure
	if errors.As(err, &failure) && failure != nil {
		return failure, true
	}
	return nil, false
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
