// Package jobs plays the host role around the FreeSurfer adapter.
//
// A Runner loads the user's input file into memory, hands it to the adapter
// together with empty output handles, writes the filled handles back to
// disk, and records every attempt in the history store. Invocations are
// serialized across processes with a file lock in the state directory, so
// two synthbridge commands never run a Synth tool at the same time.
//
// Batch manifests are YAML files listing jobs; they run one at a time and
// publish a single notification summary instead of one per job.
package jobs
