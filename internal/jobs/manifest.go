package jobs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"synthbridge/internal/config"
)

// Manifest is a YAML batch file. Relative paths resolve against the
// manifest's directory.
type Manifest struct {
	KeepGoing bool          `yaml:"keep_going"`
	Jobs      []ManifestJob `yaml:"jobs"`

	dir string
}

// ManifestJob is one entry under jobs:.
type ManifestJob struct {
	Name     string          `yaml:"name"`
	Tool     string          `yaml:"tool"`
	Input    string          `yaml:"input"`
	Output   string          `yaml:"output"`
	Resample string          `yaml:"resample"`
	Mask     string          `yaml:"mask"`
	Options  ManifestOptions `yaml:"options"`
}

// ManifestOptions overrides configured defaults. Unset keys keep the
// configured value.
type ManifestOptions struct {
	Parc       *bool `yaml:"parc"`
	Robust     *bool `yaml:"robust"`
	Fast       *bool `yaml:"fast"`
	CPU        *bool `yaml:"cpu"`
	Threads    *int  `yaml:"threads"`
	V1         *bool `yaml:"v1"`
	CT         *bool `yaml:"ct"`
	Volumes    *bool `yaml:"volumes"`
	QC         *bool `yaml:"qc"`
	Posteriors *bool `yaml:"posteriors"`
	Crop       []int `yaml:"crop"`

	GPU    *bool    `yaml:"gpu"`
	Border *float64 `yaml:"border"`
	NoCSF  *bool    `yaml:"no_csf"`
}

// LoadManifest reads and decodes a manifest file. Unknown keys are errors.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	m.dir = filepath.Dir(abs)
	return m, nil
}

// ParseManifest decodes a manifest from r. Relative paths stay relative to
// the working directory.
func ParseManifest(r io.Reader) (*Manifest, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var m Manifest
	if err := decoder.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, err
	}
	if len(m.Jobs) == 0 {
		return nil, errors.New("manifest lists no jobs")
	}
	return &m, nil
}

// Resolve turns manifest entries into jobs, applying configured defaults
// under each entry's overrides.
func (m *Manifest) Resolve(cfg *config.Config) ([]Job, error) {
	jobs := make([]Job, 0, len(m.Jobs))
	var problems []string
	for i, entry := range m.Jobs {
		job, err := m.resolveEntry(cfg, entry)
		if err != nil {
			label := entry.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i+1)
			}
			problems = append(problems, fmt.Sprintf("job %s: %v", label, err))
			continue
		}
		jobs = append(jobs, job)
	}
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return jobs, nil
}

func (m *Manifest) resolveEntry(cfg *config.Config, entry ManifestJob) (Job, error) {
	kind, err := ParseKind(entry.Tool)
	if err != nil {
		return Job{}, err
	}
	job := Job{
		Name:     entry.Name,
		Kind:     kind,
		Input:    m.resolvePath(entry.Input),
		Output:   m.resolvePath(entry.Output),
		Resample: m.resolvePath(entry.Resample),
		Mask:     m.resolvePath(entry.Mask),
		Seg:      SegDefaults(cfg),
		Strip:    StripDefaults(cfg),
	}
	o := entry.Options
	switch kind {
	case KindSeg:
		if o.GPU != nil || o.Border != nil || o.NoCSF != nil {
			return Job{}, errors.New("gpu, border and no_csf apply to synthstrip only")
		}
		setBool(&job.Seg.Parc, o.Parc)
		setBool(&job.Seg.Robust, o.Robust)
		setBool(&job.Seg.Fast, o.Fast)
		setBool(&job.Seg.CPU, o.CPU)
		setBool(&job.Seg.V1, o.V1)
		setBool(&job.Seg.CT, o.CT)
		setBool(&job.Seg.Volumes, o.Volumes)
		setBool(&job.Seg.QC, o.QC)
		setBool(&job.Seg.Posteriors, o.Posteriors)
		if o.Threads != nil {
			job.Seg.Threads = *o.Threads
		}
		if len(o.Crop) > 0 {
			job.Seg.Crop = append([]int(nil), o.Crop...)
		}
	case KindStrip:
		if o.segmentationSet() {
			return Job{}, errors.New("segmentation options apply to synthseg only")
		}
		setBool(&job.Strip.UseGPU, o.GPU)
		setBool(&job.Strip.ExcludeCSF, o.NoCSF)
		if o.Border != nil {
			job.Strip.Border = *o.Border
		}
	}
	return job, nil
}

func (o ManifestOptions) segmentationSet() bool {
	for _, p := range []*bool{o.Parc, o.Robust, o.Fast, o.CPU, o.V1, o.CT, o.Volumes, o.QC, o.Posteriors} {
		if p != nil {
			return true
		}
	}
	return o.Threads != nil || len(o.Crop) > 0
}

func (m *Manifest) resolvePath(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "~") {
		if expanded, err := config.ExpandPath(value); err == nil {
			return expanded
		}
	}
	if filepath.IsAbs(value) || m.dir == "" {
		return value
	}
	return filepath.Join(m.dir, value)
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
