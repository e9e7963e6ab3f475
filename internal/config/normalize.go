package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFreeSurfer()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.WorkDir = strings.TrimSpace(c.Paths.WorkDir)
	if c.Paths.WorkDir == "" {
		if value, ok := os.LookupEnv("SYNTHBRIDGE_WORK_DIR"); ok {
			c.Paths.WorkDir = strings.TrimSpace(value)
		}
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFreeSurfer() {
	c.FreeSurfer.HomeEnv = strings.TrimSpace(c.FreeSurfer.HomeEnv)
	if c.FreeSurfer.HomeEnv == "" {
		c.FreeSurfer.HomeEnv = defaultHomeEnv
	}
	c.FreeSurfer.SynthStripFlagStyle = strings.ToLower(strings.TrimSpace(c.FreeSurfer.SynthStripFlagStyle))
	if c.FreeSurfer.SynthStripFlagStyle == "" {
		c.FreeSurfer.SynthStripFlagStyle = defaultFlagStyle
	}
	c.FreeSurfer.BlankEnv = normalizeNames(c.FreeSurfer.BlankEnv)
	c.FreeSurfer.UnsetEnv = normalizeNames(c.FreeSurfer.UnsetEnv)
	if c.FreeSurfer.StaleWorkspaceHours < 0 {
		c.FreeSurfer.StaleWorkspaceHours = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.FileLevel = strings.ToLower(strings.TrimSpace(c.Logging.FileLevel))
	if c.Logging.FileLevel == "" {
		c.Logging.FileLevel = c.Logging.Level
	}
}

// normalizeNames trims environment variable names and drops blanks and
// duplicates while keeping the configured order.
func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
