package volume

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises voxel intensities.
type Stats struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Mean    float64 `json:"mean" yaml:"mean"`
	StdDev  float64 `json:"std_dev" yaml:"std_dev"`
	Median  float64 `json:"median" yaml:"median"`
	NonZero int     `json:"non_zero" yaml:"non_zero"`
}

// Summarize computes intensity statistics over all voxels.
func Summarize(v *Volume) Stats {
	if v.IsEmpty() {
		return Stats{}
	}
	st := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, value := range v.Data {
		st.Min = math.Min(st.Min, value)
		st.Max = math.Max(st.Max, value)
		if value != 0 {
			st.NonZero++
		}
	}
	st.Mean, st.StdDev = stat.MeanStdDev(v.Data, nil)
	if len(v.Data) == 1 {
		st.StdDev = 0
	}
	sorted := append([]float64(nil), v.Data...)
	sort.Float64s(sorted)
	st.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return st
}

// LabelCount reports the voxel count and physical volume of one label.
type LabelCount struct {
	Label    int     `json:"label" yaml:"label"`
	Voxels   int     `json:"voxels" yaml:"voxels"`
	VolumeMM float64 `json:"volume_mm3" yaml:"volume_mm3"`
}

// CountLabels tallies integer labels in a segmentation volume, excluding
// the background label 0. Results are sorted by label.
func CountLabels(v *Volume) []LabelCount {
	if v.IsEmpty() {
		return nil
	}
	counts := make(map[int]int)
	for _, value := range v.Data {
		label := int(math.Round(value))
		if label == 0 {
			continue
		}
		counts[label]++
	}
	voxelVolume := v.VoxelVolume()
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Voxels: n, VolumeMM: float64(n) * voxelVolume})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
