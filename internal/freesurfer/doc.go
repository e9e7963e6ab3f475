// Package freesurfer drives FreeSurfer's Synth command-line tools
// (mri_synthseg, mri_synthstrip) as opaque subprocesses.
//
// An Adapter turns typed option structs into a deterministic argument list,
// stages the caller's input volume as MGZ in a private workspace, runs the
// binary with a sanitized environment, and loads the staged outputs back
// into the caller's volume handles. Output handles are only written after
// the tool exits zero and every requested output has been read; the
// workspace is removed on every path.
//
// Flag spellings come from a single table per tool. mri_synthstrip changed
// its spelling across releases, so its table is picked from configuration
// or the installed build stamp.
package freesurfer
