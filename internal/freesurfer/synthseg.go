package freesurfer

import (
	"context"
	"strconv"

	"synthbridge/internal/volume"
)

// SegOptions configures mri_synthseg. Volumes, QC, Posteriors, and Crop
// are accepted for completeness but have no argument mapping; requesting
// any of them fails with ErrNotSupported.
type SegOptions struct {
	Parc    bool
	Robust  bool
	Fast    bool
	CPU     bool
	Threads int
	V1      bool
	CT      bool

	Volumes    bool
	QC         bool
	Posteriors bool
	Crop       []int
}

// SegOutputs names the handles that receive mri_synthseg results. Nil
// handles are not requested.
type SegOutputs struct {
	Segmentation *volume.Volume
	Resampled    *volume.Volume
}

// SegInvocation builds the mri_synthseg invocation. Argument order follows
// the tool's usage text.
func SegInvocation(input *volume.Volume, out SegOutputs, opts SegOptions) Invocation {
	inv := Invocation{Tool: ToolSynthSeg, Input: input}
	add := func(arg Arg) { inv.Args = append(inv.Args, arg) }

	if out.Segmentation != nil {
		add(Output(FlagOutput, StagedOutput, out.Segmentation))
	}
	if opts.Parc {
		add(Switch(FlagParc))
	}
	if opts.Robust {
		add(Switch(FlagRobust))
	}
	if opts.Fast {
		add(Switch(FlagFast))
	}
	if opts.Volumes {
		add(Switch(FlagVolumes))
	}
	if opts.QC {
		add(Switch(FlagQC))
	}
	if opts.Posteriors {
		add(Switch(FlagPosteriors))
	}
	if out.Resampled != nil {
		add(Output(FlagResample, StagedResample, out.Resampled))
	}
	if len(opts.Crop) > 0 {
		add(Switch(FlagCrop))
	}
	if opts.CPU {
		add(Switch(FlagCPU))
		if opts.Threads > 0 {
			add(Valued(FlagThreads, strconv.Itoa(opts.Threads)))
		}
	}
	if opts.V1 {
		add(Switch(FlagV1))
	}
	if opts.CT {
		add(Switch(FlagCT))
	}
	return inv
}

// Segment runs mri_synthseg on input and loads the requested outputs.
func (a *Adapter) Segment(ctx context.Context, input *volume.Volume, out SegOutputs, opts SegOptions) (*Report, error) {
	return a.Run(ctx, SegInvocation(input, out, opts))
}
