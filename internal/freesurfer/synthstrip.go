package freesurfer

import (
	"context"
	"strconv"

	"synthbridge/internal/volume"
)

// DefaultBorder is mri_synthstrip's own mask border threshold in mm.
const DefaultBorder = 1.0

// StripOptions configures mri_synthstrip. Border is only passed when it
// differs from DefaultBorder, so start from DefaultStripOptions.
type StripOptions struct {
	UseGPU     bool
	Border     float64
	ExcludeCSF bool
}

// DefaultStripOptions returns the tool's defaults.
func DefaultStripOptions() StripOptions {
	return StripOptions{Border: DefaultBorder}
}

// StripOutputs names the handles that receive mri_synthstrip results.
type StripOutputs struct {
	Stripped *volume.Volume
	Mask     *volume.Volume
}

// StripInvocation builds the mri_synthstrip invocation.
func StripInvocation(input *volume.Volume, out StripOutputs, opts StripOptions) Invocation {
	inv := Invocation{Tool: ToolSynthStrip, Input: input}
	add := func(arg Arg) { inv.Args = append(inv.Args, arg) }

	if out.Stripped != nil {
		add(Output(FlagOutput, StagedStripped, out.Stripped))
	}
	if out.Mask != nil {
		add(Output(FlagMask, StagedMask, out.Mask))
	}
	if opts.UseGPU {
		add(Switch(FlagGPU))
	}
	if opts.Border != DefaultBorder {
		add(Valued(FlagBorder, strconv.FormatFloat(opts.Border, 'f', -1, 64)))
	}
	if opts.ExcludeCSF {
		add(Switch(FlagNoCSF))
	}
	return inv
}

// Strip runs mri_synthstrip on input and loads the requested outputs.
func (a *Adapter) Strip(ctx context.Context, input *volume.Volume, out StripOutputs, opts StripOptions) (*Report, error) {
	return a.Run(ctx, StripInvocation(input, out, opts))
}
