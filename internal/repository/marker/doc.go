// Package marker persists the current workload version as a plain-text file.
//
// The marker is the local source of truth when no remote registry is
// consulted; reads strip the trailing newline and reject anything that is
// not a strict semantic version.
package marker
