package history

import "time"

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusAbandoned marks a run whose process exited before finishing it.
	StatusAbandoned Status = "abandoned"
)

// Run is one recorded tool invocation.
type Run struct {
	ID           int64
	RunID        string
	Tool         string
	Input        string
	Outputs      []string
	Args         []string
	Status       Status
	Dialect      string
	ToolVersion  string
	ExitCode     *int
	ErrorKind    string
	ErrorMessage string
	Stderr       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Duration     time.Duration
}

// IsFinished reports whether the run reached a terminal status.
func (r *Run) IsFinished() bool {
	return r != nil && r.Status != StatusRunning
}

// Outcome is what Finish records for a run.
type Outcome struct {
	Status       Status
	Args         []string
	Dialect      string
	ToolVersion  string
	ExitCode     int
	ErrorKind    string
	ErrorMessage string
	Stderr       string
	Duration     time.Duration
}

// maxStderrBytes bounds the stderr stored per row.
const maxStderrBytes = 16 * 1024
