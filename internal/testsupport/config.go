package testsupport

import (
	"path/filepath"
	"testing"

	"synthbridge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = ""
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithHomeVariable points the config at a test-specific variable name so
// tests never pick up a real installation.
func WithHomeVariable(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.FreeSurfer.HomeEnv = name
	}
}

// WithFlagStyle sets the mri_synthstrip flag style.
func WithFlagStyle(style string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.FreeSurfer.SynthStripFlagStyle = style
	}
}

// WithLogDir enables the JSON log file under the test directory.
func WithLogDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.LogDir = filepath.Join(b.baseDir, "logs")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
