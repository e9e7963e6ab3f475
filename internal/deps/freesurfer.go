package deps

import (
	"fmt"

	"synthbridge/internal/freesurfer"
)

var synthTools = []Requirement{
	{Name: "SynthSeg", Command: freesurfer.ToolSynthSeg, Description: "Required for synthbridge seg"},
	{Name: "SynthStrip", Command: freesurfer.ToolSynthStrip, Description: "Required for synthbridge strip"},
}

// CheckFreeSurfer reports the installation named by variable and the Synth
// tools inside it. The first status describes the home directory itself.
func CheckFreeSurfer(variable string, lookup freesurfer.LookupFunc) []Status {
	home := Status{Requirement: Requirement{
		Name:        "FreeSurfer home",
		Description: fmt.Sprintf("Located through $%s", variable),
	}}

	dir, err := freesurfer.ResolveHome(lookup, variable)
	if err != nil {
		home.Detail = fmt.Sprintf("$%s is not set", variable)
		results := []Status{home}
		for _, req := range synthTools {
			results = append(results, Status{Requirement: req, Detail: "FreeSurfer home unavailable"})
		}
		return results
	}

	home.Command = dir
	home.Available = true
	home.Detail = "version unknown (no build-stamp.txt)"
	if version, ok := freesurfer.DetectVersion(dir); ok {
		home.Detail = "version " + version.String()
	}

	reqs := make([]Requirement, len(synthTools))
	for i, req := range synthTools {
		req.Command = freesurfer.ToolPath(dir, req.Command)
		reqs[i] = req
	}
	return append([]Status{home}, CheckBinaries(reqs)...)
}
