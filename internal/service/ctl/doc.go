// Package ctl implements the pilot control subcommands: health probe,
// package listing, per-package status, update triggers and connectivity
// diagnostics.
package ctl
