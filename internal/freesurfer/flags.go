package freesurfer

import (
	"fmt"
	"strings"

	"synthbridge/internal/services"
)

// Tool names as installed under $FREESURFER_HOME/bin.
const (
	ToolSynthSeg   = "mri_synthseg"
	ToolSynthStrip = "mri_synthstrip"
)

// Flag is a tool-independent option key. A Dialect maps it to the spelling
// the installed binary expects.
type Flag string

const (
	FlagInput      Flag = "input"
	FlagOutput     Flag = "output"
	FlagMask       Flag = "mask"
	FlagResample   Flag = "resample"
	FlagParc       Flag = "parc"
	FlagRobust     Flag = "robust"
	FlagFast       Flag = "fast"
	FlagCPU        Flag = "cpu"
	FlagThreads    Flag = "threads"
	FlagV1         Flag = "v1"
	FlagCT         Flag = "ct"
	FlagGPU        Flag = "gpu"
	FlagBorder     Flag = "border"
	FlagNoCSF      Flag = "no_csf"
	FlagVolumes    Flag = "volumes"
	FlagQC         Flag = "qc"
	FlagPosteriors Flag = "posteriors"
	FlagCrop       Flag = "crop"
)

// Dialect is the option to argument table for one tool spelling. Flags
// missing from the table have no implemented mapping.
type Dialect struct {
	Name  string
	Flags map[Flag]string
}

// Spelling returns the argument for f.
func (d Dialect) Spelling(f Flag) (string, error) {
	if arg, ok := d.Flags[f]; ok {
		return arg, nil
	}
	return "", services.Wrap(services.ErrNotSupported, "arguments", "map option",
		fmt.Sprintf("option %q has no mapping in the %s dialect", f, d.Name), nil)
}

var synthSegDialect = Dialect{
	Name: "synthseg",
	Flags: map[Flag]string{
		FlagInput:    "--i",
		FlagOutput:   "--o",
		FlagParc:     "--parc",
		FlagRobust:   "--robust",
		FlagFast:     "--fast",
		FlagResample: "--resample",
		FlagCPU:      "--cpu",
		FlagThreads:  "--threads",
		FlagV1:       "--v1",
		FlagCT:       "--ct",
	},
}

var synthStripShortDialect = Dialect{
	Name: "synthstrip-short",
	Flags: map[Flag]string{
		FlagInput:  "-i",
		FlagOutput: "-o",
		FlagMask:   "-m",
		FlagGPU:    "-g",
		FlagBorder: "--border",
		FlagNoCSF:  "--no-csf",
	},
}

var synthStripLongDialect = Dialect{
	Name: "synthstrip-long",
	Flags: map[Flag]string{
		FlagInput:  "--image",
		FlagOutput: "--out",
		FlagMask:   "--mask",
		FlagGPU:    "--gpu",
		FlagBorder: "--border",
		FlagNoCSF:  "--no-csf",
	},
}

// FlagStyle selects the mri_synthstrip dialect.
type FlagStyle string

const (
	FlagStyleAuto  FlagStyle = "auto"
	FlagStyleShort FlagStyle = "short"
	FlagStyleLong  FlagStyle = "long"
)

// ParseFlagStyle validates a configured style. Empty means auto.
func ParseFlagStyle(value string) (FlagStyle, error) {
	switch style := FlagStyle(strings.ToLower(strings.TrimSpace(value))); style {
	case "":
		return FlagStyleAuto, nil
	case FlagStyleAuto, FlagStyleShort, FlagStyleLong:
		return style, nil
	default:
		return "", fmt.Errorf("unknown flag style %q (want auto, short, or long)", value)
	}
}

// longFlagsSince is the first release whose mri_synthstrip accepts
// --image/--out/--mask.
var longFlagsSince = Version{Major: 7, Minor: 4}

// DialectFor picks the argument table for tool. For mri_synthstrip with the
// auto style, version decides; an unknown version falls back to the short
// spelling.
func DialectFor(tool string, style FlagStyle, version Version, known bool) (Dialect, error) {
	switch tool {
	case ToolSynthSeg:
		return synthSegDialect, nil
	case ToolSynthStrip:
		switch style {
		case FlagStyleShort:
			return synthStripShortDialect, nil
		case FlagStyleLong:
			return synthStripLongDialect, nil
		case FlagStyleAuto, "":
			if known && version.AtLeast(longFlagsSince.Major, longFlagsSince.Minor) {
				return synthStripLongDialect, nil
			}
			return synthStripShortDialect, nil
		default:
			return Dialect{}, services.Wrap(services.ErrInvalidArguments, "arguments", "select dialect",
				fmt.Sprintf("unknown flag style %q", style), nil)
		}
	default:
		return Dialect{}, services.Wrap(services.ErrNotSupported, "arguments", "select dialect",
			fmt.Sprintf("no argument table for tool %q", tool), nil)
	}
}
