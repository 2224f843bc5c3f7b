// Package preflight provides readiness checks for the filesystem paths
// filterms depends on.
//
// The CLI "filterms check" command runs RunAll and prints one line per
// result. Checks for disabled features report as passed with a "disabled"
// detail.
package preflight
