// Package workspace manages the per-invocation scratch directories that hold
// staged inputs and tool outputs.
//
// Each Acquire call creates a fresh directory under the work root. Release
// removes it and is safe to call repeatedly, so callers can defer it right
// after a successful Acquire. CleanStale sweeps directories left behind by
// processes that were killed before they could release.
package workspace
