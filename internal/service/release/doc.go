// Package release advances the managed workload to its next version.
//
// It resolves the current version from the marker file or the newest
// remote Git tag, computes the target version, rewrites the embedded
// version in every bound helper artifact, regenerates the checksum
// manifest over the artifact set and records the new version.
package release
