package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"synthbridge/internal/config"
	"synthbridge/internal/deps"
	"synthbridge/internal/freesurfer"
	"synthbridge/internal/history"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckWorkRoot checks where workspaces are created. The directory may not
// exist yet; its nearest existing parent must then be writable.
func CheckWorkRoot(path string) Result {
	const name = "Work directory"
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	}
	parent := filepath.Dir(path)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing parent)", path)}
		}
		parent = next
	}
	if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, parent, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first run)", path)}
}

// CheckHistory opens the history database and reads from it.
func CheckHistory(ctx context.Context, cfg *config.Config) Result {
	const name = "Run history"
	store, err := history.Open(cfg)
	if err != nil {
		if errors.Is(err, history.ErrSchemaMismatch) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: written by a newer synthbridge; delete it to start over)", cfg.HistoryPath())}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.HistoryPath(), err)}
	}
	defer store.Close()
	if _, err := store.List(ctx, 1); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.HistoryPath(), err)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.HistoryPath()}
}

// CheckFreeSurfer reports the installation and each Synth tool.
func CheckFreeSurfer(cfg *config.Config, lookup freesurfer.LookupFunc) []Result {
	statuses := deps.CheckFreeSurfer(cfg.FreeSurfer.HomeEnv, lookup)
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		detail := status.Detail
		if status.Available && status.Command != "" {
			if detail == "" {
				detail = status.Command
			} else {
				detail = fmt.Sprintf("%s (%s)", status.Command, detail)
			}
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Detail:   detail,
			Optional: status.Optional,
		})
	}
	return results
}

// CheckStripDialect reports which mri_synthstrip flag spelling will be used.
// It is informational and never fails the preflight.
func CheckStripDialect(cfg *config.Config, lookup freesurfer.LookupFunc) Result {
	const name = "SynthStrip flags"
	style, err := freesurfer.ParseFlagStyle(cfg.FreeSurfer.SynthStripFlagStyle)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	var (
		version freesurfer.Version
		known   bool
	)
	if home, err := freesurfer.ResolveHome(lookup, cfg.FreeSurfer.HomeEnv); err == nil {
		version, known = freesurfer.DetectVersion(home)
	}
	dialect, err := freesurfer.DialectFor(freesurfer.ToolSynthStrip, style, version, known)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("%s (style %s)", dialect.Name, style)}
}
