// Package config defines agent settings used by the dockhand binaries and
// helpers to load, validate and save them in YAML format.
//
// It also owns the generated pilot configuration: the JSON document carrying
// package descriptors and host identity that is handed to the managed
// workload once at provisioning time.
package config
