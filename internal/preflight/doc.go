// Package preflight provides readiness checks for the FreeSurfer
// installation and the filesystem paths synthbridge depends on.
//
// The doctor command prints every result; any failed required check makes it
// exit nonzero.
package preflight
