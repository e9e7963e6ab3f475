package freesurfer

import (
	"fmt"

	"synthbridge/internal/services"
	"synthbridge/internal/volume"
)

// Staged file names inside a workspace.
const (
	StagedInput    = "input.mgz"
	StagedOutput   = "output.mgz"
	StagedResample = "resample.mgz"
	StagedStripped = "stripped.mgz"
	StagedMask     = "mask.mgz"
)

// Arg is one requested option. A bare switch has an empty Value. When
// Target is set, Value names a staged output file that is loaded into
// Target after a successful run.
type Arg struct {
	Flag   Flag
	Value  string
	Target *volume.Volume
}

// Switch requests a flag with no value.
func Switch(f Flag) Arg { return Arg{Flag: f} }

// Valued requests a flag followed by a literal value.
func Valued(f Flag, value string) Arg { return Arg{Flag: f, Value: value} }

// Output requests a staged output file loaded into target.
func Output(f Flag, file string, target *volume.Volume) Arg {
	return Arg{Flag: f, Value: file, Target: target}
}

// Invocation is a single tool run. Args are emitted in order after the
// staged input.
type Invocation struct {
	Tool  string
	Input *volume.Volume
	Args  []Arg
}

func (inv Invocation) outputs() []Arg {
	var out []Arg
	for _, arg := range inv.Args {
		if arg.Target != nil {
			out = append(out, arg)
		}
	}
	return out
}

// validate checks the preconditions that need no environment.
func (inv Invocation) validate() error {
	if inv.Input == nil {
		return services.Wrap(services.ErrInvalidArguments, "validate", "check input", "input volume is required", nil)
	}
	if err := inv.Input.Validate(); err != nil {
		return services.Wrap(services.ErrInvalidArguments, "validate", "check input", "input volume is not usable", err)
	}
	if len(inv.outputs()) == 0 {
		return services.Wrap(services.ErrInvalidArguments, "validate", "check outputs", "at least one output must be requested", nil)
	}
	for _, out := range inv.outputs() {
		if out.Value == "" || out.Value == StagedInput {
			return services.Wrap(services.ErrInvalidArguments, "validate", "check outputs",
				fmt.Sprintf("output %q needs a distinct staged file name", out.Flag), nil)
		}
		if out.Target == inv.Input {
			return services.Wrap(services.ErrInvalidArguments, "validate", "check outputs",
				fmt.Sprintf("output %q aliases the input volume", out.Flag), nil)
		}
	}
	// Every dialect of a tool maps the same flags, so support can be
	// decided before the installation is inspected.
	dialect, err := DialectFor(inv.Tool, FlagStyleShort, Version{}, false)
	if err != nil {
		return err
	}
	for _, arg := range inv.Args {
		if _, err := dialect.Spelling(arg.Flag); err != nil {
			return err
		}
	}
	return nil
}

// BuildArgs renders the argument list for inv using dialect. Staged file
// names are resolved with path.
func BuildArgs(dialect Dialect, inv Invocation, path func(string) string) ([]string, error) {
	input, err := dialect.Spelling(FlagInput)
	if err != nil {
		return nil, err
	}
	args := []string{input, path(StagedInput)}
	for _, arg := range inv.Args {
		spelling, err := dialect.Spelling(arg.Flag)
		if err != nil {
			return nil, err
		}
		args = append(args, spelling)
		switch {
		case arg.Target != nil:
			args = append(args, path(arg.Value))
		case arg.Value != "":
			args = append(args, arg.Value)
		}
	}
	return args, nil
}
