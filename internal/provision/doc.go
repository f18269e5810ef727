// Package provision performs the idempotent privileged host mutations the
// workload needs before it can run: service account, directory layout,
// SSH keypair, container runtime and VPN client.
//
// Each mutation is a Step whose Detect re-derives from host inspection
// whether Apply would be a no-op, so every run is safe to interleave with
// manual intervention on the same host.
package provision
