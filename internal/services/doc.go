// Package services defines shared utilities consumed by the tool adapter, the
// job runner, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, tool names, and stage names for
//     logging.
//   - Structured error markers (invalid arguments, missing environment, not
//     supported, external tool failure, IO failure) plus the Wrap helper that
//     attaches stage context without losing the marker.
//
// Use these helpers when wiring new invocation code so failures are classified
// the same way everywhere they surface.
package services
