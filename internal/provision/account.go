package provision

import (
	"context"
	"fmt"
	"os"
)

const (
	// DefaultServiceAccount is the account the pilot workload runs under.
	DefaultServiceAccount = "dockhand"

	// runtimeGroup owns the container-runtime control socket.
	runtimeGroup = "docker"

	// defaultControlSocket is the container-runtime control socket path.
	defaultControlSocket = "/var/run/docker.sock"

	// loginShell is assigned to the created account.
	loginShell = "/bin/bash"
)

// ServiceAccountStep creates the workload's service account and keeps the
// runtime control socket accessible to it.
type ServiceAccountStep struct {
	// Account is the login name to ensure.
	Account string
	// ControlSocket is the runtime socket whose group and mode are
	// re-asserted every run.
	ControlSocket string

	commander Commander
}

// NewServiceAccountStep builds the step with defaults filled in.
func NewServiceAccountStep(account string, commander Commander) *ServiceAccountStep {
	if account == "" {
		account = DefaultServiceAccount
	}

	return &ServiceAccountStep{
		Account:       account,
		ControlSocket: defaultControlSocket,
		commander:     commander,
	}
}

// Name identifies the step.
func (s *ServiceAccountStep) Name() string {
	return "service-account"
}

// Detect probes for the account with `id`.
func (s *ServiceAccountStep) Detect(ctx context.Context) (State, error) {
	if _, err := s.commander.Run(ctx, "id", "-u", s.Account); err != nil {
		// `id` fails only when the account is unknown.
		return StateAbsent, nil
	}

	return StatePresent, nil
}

// Apply creates the account with a home directory and login shell,
// then grants it membership in the runtime socket group.
func (s *ServiceAccountStep) Apply(ctx context.Context) error {
	if _, err := s.commander.Run(ctx, "useradd", "-m", "-s", loginShell, s.Account); err != nil {
		return fmt.Errorf("create account %s: %w", s.Account, err)
	}

	if _, err := s.commander.Run(ctx, "usermod", "-aG", runtimeGroup, s.Account); err != nil {
		return fmt.Errorf("add %s to group %s: %w", s.Account, runtimeGroup, err)
	}

	return nil
}

// Assert re-applies socket ownership and mode on every run, since
// unrelated host activity can reset them.
func (s *ServiceAccountStep) Assert(ctx context.Context) error {
	if _, err := os.Stat(s.ControlSocket); err != nil {
		// No runtime socket yet; the runtime step will create it.
		return nil
	}

	if _, err := s.commander.Run(ctx, "chgrp", runtimeGroup, s.ControlSocket); err != nil {
		return fmt.Errorf("chgrp %s: %w", s.ControlSocket, err)
	}

	if _, err := s.commander.Run(ctx, "chmod", "660", s.ControlSocket); err != nil {
		return fmt.Errorf("chmod %s: %w", s.ControlSocket, err)
	}

	return nil
}
