package preflight

import (
	"context"
	"os"
	"strings"

	"synthbridge/internal/config"
	"synthbridge/internal/freesurfer"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// RunAll executes every preflight check for cfg using the process
// environment.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	return RunAllWith(ctx, cfg, os.LookupEnv)
}

// RunAllWith is RunAll with an injected environment lookup.
func RunAllWith(ctx context.Context, cfg *config.Config, lookup freesurfer.LookupFunc) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	workDir := strings.TrimSpace(cfg.Paths.WorkDir)
	if workDir == "" {
		workDir = os.TempDir()
	}
	results = append(results, CheckWorkRoot(workDir))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckHistory(ctx, cfg))
	results = append(results, CheckFreeSurfer(cfg, lookup)...)
	results = append(results, CheckStripDialect(cfg, lookup))
	return results
}

// Failed returns the non-optional results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
