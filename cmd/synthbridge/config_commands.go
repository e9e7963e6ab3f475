package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"synthbridge/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the synthbridge configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return cmd
}

// initTarget resolves where `config init` writes, refusing to clobber an
// existing file unless overwrite is set.
func initTarget(raw string, overwrite bool) (string, error) {
	var (
		target string
		err    error
	)
	if raw = strings.TrimSpace(raw); raw == "" {
		target, err = config.DefaultConfigPath()
	} else {
		target, err = config.ExpandPath(raw)
	}
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	if overwrite {
		return target, nil
	}
	switch _, statErr := os.Stat(target); {
	case statErr == nil:
		return "", fmt.Errorf("%s already exists (pass --overwrite to replace it)", target)
	case !errors.Is(statErr, fs.ErrNotExist):
		return "", fmt.Errorf("check config path: %w", statErr)
	}
	return target, nil
}

func newConfigInitCommand() *cobra.Command {
	var (
		path      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(path, overwrite)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Export FREESURFER_HOME (or set freesurfer.home_env) before running synthbridge.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report the resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			source := ctx.configPath
			if !ctx.configSeen {
				source += " (not found, using defaults)"
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, configSummary(source, cfg), nil))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func configSummary(source string, cfg *config.Config) [][]string {
	notify := "off"
	if cfg.Notifications.NtfyTopic != "" {
		notify = cfg.Notifications.NtfyTopic
	}
	return [][]string{
		{"config", source},
		{"state_dir", cfg.Paths.StateDir},
		{"log_dir", cfg.Paths.LogDir},
		{"work_dir", cfg.Paths.WorkDir},
		{"freesurfer.home_env", cfg.FreeSurfer.HomeEnv},
		{"synthstrip_flag_style", cfg.FreeSurfer.SynthStripFlagStyle},
		{"stale_workspace_hours", strconv.Itoa(cfg.FreeSurfer.StaleWorkspaceHours)},
		{"ntfy", notify},
		{"log level", cfg.Logging.Level + " / file " + cfg.Logging.FileLevel},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			encoded, err := cfg.Encode()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), encoded)
			return err
		},
	}
}
