package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"synthbridge/internal/config"
	"synthbridge/internal/jobs"
)

func newSegCommand(ctx *commandContext) *cobra.Command {
	var (
		input, output, resample string
		parc, robust, fast      bool
		cpu, v1, ct             bool
		threads                 int
	)

	cmd := &cobra.Command{
		Use:   "seg",
		Short: "Segment a brain volume with mri_synthseg",
		Long: `Segment a brain volume with mri_synthseg.

Options left unset fall back to the [synthseg] section of the configuration.
Outputs take the voxel type of the input volume.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(cmd, func(cfg *config.Config, runner *jobs.Runner) error {
				job := jobs.Job{
					Kind:     jobs.KindSeg,
					Input:    strings.TrimSpace(input),
					Output:   strings.TrimSpace(output),
					Resample: strings.TrimSpace(resample),
					Seg:      jobs.SegDefaults(cfg),
				}
				flags := cmd.Flags()
				overrideBool(flags.Changed("parc"), &job.Seg.Parc, parc)
				overrideBool(flags.Changed("robust"), &job.Seg.Robust, robust)
				overrideBool(flags.Changed("fast"), &job.Seg.Fast, fast)
				overrideBool(flags.Changed("cpu"), &job.Seg.CPU, cpu)
				overrideBool(flags.Changed("v1"), &job.Seg.V1, v1)
				overrideBool(flags.Changed("ct"), &job.Seg.CT, ct)
				if flags.Changed("threads") {
					job.Seg.Threads = threads
				}
				result, err := runner.Run(cmd.Context(), job)
				if err != nil {
					return err
				}
				printResult(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input volume (NIfTI, MGH/MGZ, or a DICOM series directory)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Segmentation output (.nii, .nii.gz, .mgh, .mgz)")
	cmd.Flags().StringVar(&resample, "resample", "", "Write the input resampled to the segmentation grid")
	cmd.Flags().BoolVar(&parc, "parc", false, "Add cortical parcellation")
	cmd.Flags().BoolVar(&robust, "robust", false, "Use the robust model for low-quality scans")
	cmd.Flags().BoolVar(&fast, "fast", false, "Skip some post-processing for speed")
	cmd.Flags().BoolVar(&cpu, "cpu", false, "Run on the CPU instead of the GPU")
	cmd.Flags().IntVar(&threads, "threads", 0, "CPU threads (only with --cpu; 0 lets the tool decide)")
	cmd.Flags().BoolVar(&v1, "v1", false, "Use the SynthSeg 1.0 model")
	cmd.Flags().BoolVar(&ct, "ct", false, "Clip intensities for CT scans")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newStripCommand(ctx *commandContext) *cobra.Command {
	var (
		input, output, mask string
		gpu, noCSF          bool
		border              float64
	)

	cmd := &cobra.Command{
		Use:   "strip",
		Short: "Skull-strip a volume with mri_synthstrip",
		Long: `Skull-strip a volume with mri_synthstrip.

At least one of --output and --mask is required. Options left unset fall
back to the [synthstrip] section of the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(cmd, func(cfg *config.Config, runner *jobs.Runner) error {
				job := jobs.Job{
					Kind:   jobs.KindStrip,
					Input:  strings.TrimSpace(input),
					Output: strings.TrimSpace(output),
					Mask:   strings.TrimSpace(mask),
					Strip:  jobs.StripDefaults(cfg),
				}
				flags := cmd.Flags()
				overrideBool(flags.Changed("gpu"), &job.Strip.UseGPU, gpu)
				overrideBool(flags.Changed("no-csf"), &job.Strip.ExcludeCSF, noCSF)
				if flags.Changed("border") {
					job.Strip.Border = border
				}
				result, err := runner.Run(cmd.Context(), job)
				if err != nil {
					return err
				}
				printResult(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input volume (NIfTI, MGH/MGZ, or a DICOM series directory)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Skull-stripped output (.nii, .nii.gz, .mgh, .mgz)")
	cmd.Flags().StringVarP(&mask, "mask", "m", "", "Binary brain mask output")
	cmd.Flags().BoolVarP(&gpu, "gpu", "g", false, "Run on the GPU")
	cmd.Flags().Float64Var(&border, "border", 1, "Mask border threshold in mm")
	cmd.Flags().BoolVar(&noCSF, "no-csf", false, "Exclude CSF from the brain border")
	_ = cmd.MarkFlagRequired("input")
	cmd.MarkFlagsOneRequired("output", "mask")
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "batch MANIFEST",
		Short: "Run every job listed in a YAML manifest",
		Long: `Run every job listed in a YAML manifest, one at a time.

Relative paths in the manifest resolve against the manifest's directory.
Without --keep-going (or keep_going: true in the manifest) the first
failure skips the remaining jobs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := jobs.LoadManifest(args[0])
			if err != nil {
				return err
			}
			return ctx.withRunner(cmd, func(cfg *config.Config, runner *jobs.Runner) error {
				list, err := manifest.Resolve(cfg)
				if err != nil {
					return err
				}
				summary, runErr := runner.RunBatch(cmd.Context(), list, keepGoing || manifest.KeepGoing)
				printBatchSummary(cmd, summary)
				return runErr
			})
		},
	}

	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Continue after a failed job")
	return cmd
}

func overrideBool(changed bool, dst *bool, value bool) {
	if changed {
		*dst = value
	}
}

func printResult(cmd *cobra.Command, result *jobs.Result) {
	out := cmd.OutOrStdout()
	for _, path := range result.Written {
		fmt.Fprintf(out, "Wrote %s\n", path)
	}
	fmt.Fprintf(out, "Run %s finished in %s\n", shortID(result.RunID), formatDuration(result.Duration))
}

func printBatchSummary(cmd *cobra.Command, summary jobs.BatchSummary) {
	rows := make([][]string, 0, len(summary.Entries))
	for i, entry := range summary.Entries {
		status := "ok"
		detail := strings.Join(entryOutputs(entry), ", ")
		switch {
		case entry.Skipped:
			status = "skipped"
			detail = ""
		case entry.Err != nil:
			status = "failed"
			detail = entry.Err.Error()
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			entry.Job.Label(),
			entry.Job.Kind.Tool(),
			status,
			detail,
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Job", "Tool", "Status", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "%d succeeded, %d failed, %d skipped\n", summary.Succeeded, summary.Failed, summary.Skipped)
}

func entryOutputs(entry jobs.BatchEntry) []string {
	if entry.Result == nil {
		return nil
	}
	return entry.Result.Written
}
