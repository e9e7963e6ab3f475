package jobs

import (
	"fmt"
	"path/filepath"
	"strings"

	"synthbridge/internal/freesurfer"
	"synthbridge/internal/services"
	"synthbridge/internal/volume"
)

// Kind selects the tool a job runs.
type Kind string

const (
	KindSeg   Kind = "synthseg"
	KindStrip Kind = "synthstrip"
)

// ParseKind accepts the tool name with or without the mri_ prefix, or the
// CLI command name.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "synthseg", "mri_synthseg", "seg":
		return KindSeg, nil
	case "synthstrip", "mri_synthstrip", "strip":
		return KindStrip, nil
	default:
		return "", fmt.Errorf("unknown tool %q (want synthseg or synthstrip)", value)
	}
}

// Tool returns the FreeSurfer binary name.
func (k Kind) Tool() string {
	if k == KindStrip {
		return freesurfer.ToolSynthStrip
	}
	return freesurfer.ToolSynthSeg
}

// Job is one file-to-file tool run. For segmentation Output is the label
// map and Resample the optional resampled image; for stripping Output is the
// stripped image and Mask the brain mask.
type Job struct {
	Name     string
	Kind     Kind
	Input    string
	Output   string
	Resample string
	Mask     string
	Seg      freesurfer.SegOptions
	Strip    freesurfer.StripOptions
}

// Label names the job in logs and summaries.
func (j Job) Label() string {
	if j.Name != "" {
		return j.Name
	}
	return filepath.Base(j.Input)
}

// Outputs lists the requested output paths in argument order.
func (j Job) Outputs() []string {
	var out []string
	for _, path := range []string{j.Output, j.Resample, j.Mask} {
		if path != "" {
			out = append(out, path)
		}
	}
	return out
}

// Validate checks the paths before any lock is taken or file is read.
func (j Job) Validate() error {
	invalid := func(msg string, err error) error {
		return services.Wrap(services.ErrInvalidArguments, "validate", j.Label(), msg, err)
	}
	if strings.TrimSpace(j.Input) == "" {
		return invalid("input path is required", nil)
	}
	switch j.Kind {
	case KindSeg:
		if j.Mask != "" {
			return invalid("mri_synthseg has no mask output", nil)
		}
	case KindStrip:
		if j.Resample != "" {
			return invalid("mri_synthstrip has no resample output", nil)
		}
	default:
		return invalid(fmt.Sprintf("unknown tool %q", j.Kind), nil)
	}

	outputs := j.Outputs()
	if len(outputs) == 0 {
		return invalid("at least one output path is required", nil)
	}
	seen := map[string]struct{}{filepath.Clean(j.Input): {}}
	for _, path := range outputs {
		if err := volume.CheckWritable(path); err != nil {
			return invalid("output path", err)
		}
		clean := filepath.Clean(path)
		if _, dup := seen[clean]; dup {
			return invalid(fmt.Sprintf("%s is used more than once", path), nil)
		}
		seen[clean] = struct{}{}
	}
	return nil
}
