// Package pilot is the HTTP client for the managed update-checking
// service. The pilot is an external collaborator: a pre-built container
// image reachable over HTTP whose control API lists packages, reports
// per-package status and accepts deployment triggers.
package pilot
