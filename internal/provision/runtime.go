package provision

import (
	"context"
	"fmt"
)

// ContainerRuntimeStep installs the container runtime when the version
// probe fails.
type ContainerRuntimeStep struct {
	// InstallCommand is the privileged installation command.
	InstallCommand []string

	commander Commander
}

// NewContainerRuntimeStep builds the step with the convenience installer
// as the default.
func NewContainerRuntimeStep(commander Commander) *ContainerRuntimeStep {
	return &ContainerRuntimeStep{
		InstallCommand: []string{"sh", "-c", "curl -fsSL https://get.docker.com | sh"},
		commander:      commander,
	}
}

// Name identifies the step.
func (s *ContainerRuntimeStep) Name() string {
	return "container-runtime"
}

// Detect probes the runtime with a version query.
func (s *ContainerRuntimeStep) Detect(ctx context.Context) (State, error) {
	if _, err := s.commander.Run(ctx, "docker", "--version"); err != nil {
		return StateAbsent, nil
	}

	return StatePresent, nil
}

// Apply runs the installation command. Failure is fatal: nothing later in
// the bootstrap can work without the runtime.
func (s *ContainerRuntimeStep) Apply(ctx context.Context) error {
	if len(s.InstallCommand) == 0 {
		return fmt.Errorf("no install command configured")
	}

	program, args := s.InstallCommand[0], s.InstallCommand[1:]
	if _, err := s.commander.Run(ctx, program, args...); err != nil {
		return fmt.Errorf("install container runtime: %w", err)
	}

	return nil
}
