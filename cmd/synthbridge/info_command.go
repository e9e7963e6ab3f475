package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"synthbridge/internal/volume"
)

type volumeInfo struct {
	Path     string              `json:"path" yaml:"path"`
	Format   string              `json:"format" yaml:"format"`
	Dims     [4]int              `json:"dims" yaml:"dims"`
	DataType string              `json:"data_type" yaml:"data_type"`
	Spacing  [3]float64          `json:"spacing_mm" yaml:"spacing_mm"`
	Affine   [4][4]float64       `json:"affine" yaml:"affine"`
	Stats    volume.Stats        `json:"stats" yaml:"stats"`
	Labels   []volume.LabelCount `json:"labels,omitempty" yaml:"labels,omitempty"`
}

func newInfoCommand() *cobra.Command {
	var formatFlag string
	var labels bool

	cmd := &cobra.Command{
		Use:         "info FILE",
		Short:       "Describe a volume's geometry, voxel type, and intensity statistics",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(formatFlag)
			if err != nil {
				return err
			}
			path := strings.TrimSpace(args[0])
			v, err := volume.Load(path)
			if err != nil {
				return err
			}
			info := volumeInfo{
				Path:     path,
				Format:   volume.DetectFormat(path).String(),
				Dims:     v.Dims,
				DataType: v.DataType.String(),
				Spacing:  v.Spacing(),
				Affine:   v.Affine,
				Stats:    volume.Summarize(v),
			}
			if labels {
				info.Labels = volume.CountLabels(v)
			}
			if done, err := writeStructured(cmd, format, info); done {
				return err
			}
			renderVolumeInfo(cmd, info, labels)
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", formatTable, "Output format: table, json, or yaml")
	cmd.Flags().BoolVar(&labels, "labels", false, "Count voxels per integer label (for segmentations)")
	return cmd
}

func renderVolumeInfo(cmd *cobra.Command, info volumeInfo, labels bool) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"Path", info.Path},
		{"Format", info.Format},
		{"Dimensions", fmt.Sprintf("%d x %d x %d x %d", info.Dims[0], info.Dims[1], info.Dims[2], info.Dims[3])},
		{"Voxel type", info.DataType},
		{"Spacing (mm)", fmt.Sprintf("%.4g x %.4g x %.4g", info.Spacing[0], info.Spacing[1], info.Spacing[2])},
		{"Min / Max", fmt.Sprintf("%.6g / %.6g", info.Stats.Min, info.Stats.Max)},
		{"Mean (sd)", fmt.Sprintf("%.6g (%.6g)", info.Stats.Mean, info.Stats.StdDev)},
		{"Median", fmt.Sprintf("%.6g", info.Stats.Median)},
		{"Non-zero voxels", fmt.Sprintf("%d", info.Stats.NonZero)},
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

	if !labels {
		return
	}
	if len(info.Labels) == 0 {
		fmt.Fprintln(out, "No non-zero labels")
		return
	}
	labelRows := make([][]string, 0, len(info.Labels))
	for _, lc := range info.Labels {
		labelRows = append(labelRows, []string{
			fmt.Sprintf("%d", lc.Label),
			fmt.Sprintf("%d", lc.Voxels),
			fmt.Sprintf("%.2f", lc.VolumeMM),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Label", "Voxels", "Volume (mm³)"},
		labelRows,
		[]columnAlignment{alignRight, alignRight, alignRight},
	))
}
