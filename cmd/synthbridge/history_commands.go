package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"synthbridge/internal/history"
)

// runView is the serialized form of a history row.
type runView struct {
	ID          int64     `json:"id" yaml:"id"`
	RunID       string    `json:"run_id" yaml:"run_id"`
	Tool        string    `json:"tool" yaml:"tool"`
	Status      string    `json:"status" yaml:"status"`
	Input       string    `json:"input" yaml:"input"`
	Outputs     []string  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Args        []string  `json:"args,omitempty" yaml:"args,omitempty"`
	Dialect     string    `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	ToolVersion string    `json:"tool_version,omitempty" yaml:"tool_version,omitempty"`
	ExitCode    *int      `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	Stderr      string    `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	DurationMS  int64     `json:"duration_ms" yaml:"duration_ms"`
}

func newRunView(run *history.Run) runView {
	return runView{
		ID:          run.ID,
		RunID:       run.RunID,
		Tool:        run.Tool,
		Status:      string(run.Status),
		Input:       run.Input,
		Outputs:     run.Outputs,
		Args:        run.Args,
		Dialect:     run.Dialect,
		ToolVersion: run.ToolVersion,
		ExitCode:    run.ExitCode,
		ErrorKind:   run.ErrorKind,
		Error:       run.ErrorMessage,
		Stderr:      run.Stderr,
		StartedAt:   run.StartedAt,
		DurationMS:  run.Duration.Milliseconds(),
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded tool runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(formatFlag)
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			views := make([]runView, 0, len(runs))
			for _, run := range runs {
				views = append(views, newRunView(run))
			}
			if done, err := writeStructured(cmd, format, views); done {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					strconv.FormatInt(run.ID, 10),
					shortID(run.RunID),
					run.Tool,
					statusLabel(run),
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					formatDuration(run.Duration),
					truncateMiddle(run.Input, 48),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Run", "Tool", "Status", "Started", "Duration", "Input"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().StringVarP(&formatFlag, "format", "f", formatTable, "Output format: table, json, or yaml")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one run by row number or run ID prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(formatFlag)
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			ref := strings.TrimSpace(args[0])
			var run *history.Run
			if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
				run, err = store.Get(cmd.Context(), id)
			} else {
				run, err = store.GetByRunID(cmd.Context(), ref)
			}
			if err != nil {
				return err
			}
			if run == nil {
				return errors.New("no run matches " + ref)
			}

			view := newRunView(run)
			if done, err := writeStructured(cmd, format, view); done {
				return err
			}
			renderRun(cmd, run)
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", formatTable, "Output format: table, json, or yaml")
	return cmd
}

func renderRun(cmd *cobra.Command, run *history.Run) {
	exitCode := "-"
	if run.ExitCode != nil {
		exitCode = strconv.Itoa(*run.ExitCode)
	}
	rows := [][]string{
		{"Row", strconv.FormatInt(run.ID, 10)},
		{"Run ID", run.RunID},
		{"Tool", run.Tool},
		{"Status", statusLabel(run)},
		{"Input", run.Input},
		{"Outputs", strings.Join(run.Outputs, "\n")},
		{"Command", strings.Join(run.Args, " ")},
		{"Flag dialect", run.Dialect},
		{"Tool version", run.ToolVersion},
		{"Exit code", exitCode},
		{"Started", run.StartedAt.Local().Format(time.RFC3339)},
		{"Duration", formatDuration(run.Duration)},
	}
	if run.ErrorMessage != "" {
		rows = append(rows, []string{"Error", run.ErrorMessage})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
	if stderr := strings.TrimSpace(run.Stderr); stderr != "" {
		fmt.Fprintln(out, "Tool stderr:")
		fmt.Fprintln(out, stderr)
	}
}

func statusLabel(run *history.Run) string {
	if run.Status == history.StatusFailed && run.ErrorKind != "" {
		return fmt.Sprintf("%s (%s)", run.Status, run.ErrorKind)
	}
	return string(run.Status)
}
