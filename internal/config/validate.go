package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFreeSurfer(); err != nil {
		return err
	}
	if err := c.validateSynthSeg(); err != nil {
		return err
	}
	if err := c.validateSynthStrip(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFreeSurfer() error {
	if strings.ContainsAny(c.FreeSurfer.HomeEnv, "= \t") {
		return fmt.Errorf("freesurfer.home_env %q is not a valid variable name", c.FreeSurfer.HomeEnv)
	}
	switch c.FreeSurfer.SynthStripFlagStyle {
	case "auto", "short", "long":
	default:
		return fmt.Errorf("freesurfer.synthstrip_flag_style must be auto, short, or long (got %q)", c.FreeSurfer.SynthStripFlagStyle)
	}
	for _, name := range append(append([]string(nil), c.FreeSurfer.BlankEnv...), c.FreeSurfer.UnsetEnv...) {
		if strings.Contains(name, "=") {
			return fmt.Errorf("freesurfer environment entry %q must be a variable name", name)
		}
	}
	return nil
}

func (c *Config) validateSynthSeg() error {
	if c.SynthSeg.Threads < 0 {
		return errors.New("synthseg.threads must be zero or positive")
	}
	return nil
}

func (c *Config) validateSynthStrip() error {
	if math.IsNaN(c.SynthStrip.Border) || math.IsInf(c.SynthStrip.Border, 0) {
		return errors.New("synthstrip.border must be a finite number")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.MinRunSeconds < 0 {
		return errors.New("notifications.min_run_seconds must be >= 0")
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL (got %q)", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console, or json (got %q)", c.Logging.Format)
	}
	for key, level := range map[string]string{"logging.level": c.Logging.Level, "logging.file_level": c.Logging.FileLevel} {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("%s must be debug, info, warn, or error (got %q)", key, level)
		}
	}
	return nil
}
