// Package diag implements the connectivity diagnostics behind the ctl
// debug subcommand: DNS resolution, pilot reachability and runtime daemon
// process presence.
package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/oshokin/dockhand/internal/logger"
	"github.com/oshokin/dockhand/internal/pilot"
)

// daemonProcessName is the container runtime daemon executable.
const daemonProcessName = "dockerd"

// ErrChecksFailed is returned when at least one diagnostic check failed.
var ErrChecksFailed = errors.New("one or more connectivity checks failed")

// Check is one diagnostic result.
type Check struct {
	// Name identifies the check.
	Name string
	// Passed reports the outcome.
	Passed bool
	// Detail is a human-readable result or failure description.
	Detail string
}

// Report collects the outcome of all checks.
type Report struct {
	// Checks in execution order.
	Checks []Check
}

// Failed reports whether any check failed.
func (r *Report) Failed() bool {
	for _, check := range r.Checks {
		if !check.Passed {
			return true
		}
	}

	return false
}

func (r *Report) add(name string, passed bool, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Detail: detail})
}

// Run executes the diagnostics against the pilot at pilotAddress.
func Run(ctx context.Context, pilotAddress string) (*Report, error) {
	ctx = logger.WithName(ctx, "diag")
	report := new(Report)

	host := checkAddress(report, pilotAddress)
	if host != "" {
		checkDNS(report, host)
	}

	checkHealth(ctx, report, pilotAddress)
	checkDaemonProcess(report)

	for _, check := range report.Checks {
		if check.Passed {
			logger.InfoKV(ctx, "Check passed", "check", check.Name, "detail", check.Detail)
		} else {
			logger.WarnKV(ctx, "Check failed", "check", check.Name, "detail", check.Detail)
		}
	}

	if report.Failed() {
		return report, ErrChecksFailed
	}

	return report, nil
}

// checkAddress validates the pilot URL and returns its hostname.
func checkAddress(report *Report, pilotAddress string) string {
	parsed, err := url.ParseRequestURI(pilotAddress)
	if err != nil {
		report.add("pilot-address", false, fmt.Sprintf("invalid URL %q: %v", pilotAddress, err))
		return ""
	}

	report.add("pilot-address", true, parsed.Host)

	return parsed.Hostname()
}

// checkDNS resolves the pilot host. Literal IPs resolve to themselves.
func checkDNS(report *Report, host string) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		report.add("dns-resolution", false,
			fmt.Sprintf("cannot resolve %s: %v (check /etc/resolv.conf and upstream DNS)", host, err))

		return
	}

	report.add("dns-resolution", true, fmt.Sprintf("%s -> %s", host, strings.Join(addrs, ", ")))
}

// checkHealth queries the pilot health endpoint.
func checkHealth(ctx context.Context, report *Report, pilotAddress string) {
	client, err := pilot.NewClient(pilotAddress)
	if err != nil {
		report.add("pilot-health", false, err.Error())
		return
	}

	if err = client.Health(ctx); err != nil {
		report.add("pilot-health", false, err.Error())
		return
	}

	report.add("pilot-health", true, "pilot answered healthy")
}

// checkDaemonProcess looks for the runtime daemon in the process list.
func checkDaemonProcess(report *Report) {
	processes, err := ps.Processes()
	if err != nil {
		report.add("runtime-daemon", false, fmt.Sprintf("cannot list processes: %v", err))
		return
	}

	for _, process := range processes {
		if process.Executable() == daemonProcessName {
			report.add("runtime-daemon", true, fmt.Sprintf("%s running (pid %d)", daemonProcessName, process.Pid()))
			return
		}
	}

	report.add("runtime-daemon", false, daemonProcessName+" not found in process list (systemctl status docker)")
}
