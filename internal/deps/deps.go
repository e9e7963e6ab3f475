package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement names an executable synthbridge launches.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after probing. When Available, Command holds the
// resolved path; otherwise Detail says what was wrong.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// CheckBinaries probes each requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		out[i] = probe(req)
	}
	return out
}

// probe resolves req.Command. A command with a path separator is checked in
// place; a bare name goes through PATH.
func probe(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	st := Status{Requirement: req}
	if req.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return st
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		st.Detail = resolved + " is not executable"
		return st
	}
	st.Command = resolved
	st.Available = true
	return st
}

// Missing filters statuses down to unavailable, non-optional entries.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, st := range statuses {
		if !st.Available && !st.Optional {
			missing = append(missing, st)
		}
	}
	return missing
}
