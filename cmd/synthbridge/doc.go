// Package main hosts the synthbridge CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into jobs for the
// runner (seg, strip, batch), read-only inspection of volumes and run
// history (info, history, logs), installation checks (doctor, test-notify),
// and configuration scaffolding (config). Configuration and logger setup live in the shared
// commandContext so subcommands only declare flags and render results.
package main
