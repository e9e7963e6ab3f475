// Package config loads, normalizes, and validates synthbridge configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type carries the FreeSurfer
// lookup rules, the child-process environment edits, default tool options,
// and logging settings, so the CLI can assemble an adapter in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
