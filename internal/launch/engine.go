package launch

import (
	"context"
	"fmt"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
)

// ComposeEngine is the production Engine backed by docker compose.
type ComposeEngine struct{}

// NewComposeEngine creates the production engine.
func NewComposeEngine() *ComposeEngine {
	return &ComposeEngine{}
}

// run executes a docker command in the compose working directory.
func (e *ComposeEngine) run(ctx context.Context, workingDir string, args ...string) (string, error) {
	opts := []executor.Option{
		executor.WithCapture(true, true, true),
	}
	if workingDir != "" {
		opts = append(opts, executor.WithWorkingDir(workingDir))
	}

	result, err := executor.New("docker", args...).Execute(ctx, opts...)
	if err != nil {
		output := ""
		if result != nil {
			output = strings.TrimSpace(result.Combined)
		}

		return output, fmt.Errorf("docker %s: %s: %w", strings.Join(args, " "), output, err)
	}

	return strings.TrimSpace(result.Stdout), nil
}

// Pull fetches the workload image.
func (e *ComposeEngine) Pull(ctx context.Context, workingDir string) error {
	_, err := e.run(ctx, workingDir, "compose", "pull")
	return err
}

// Up starts the workload detached.
func (e *ComposeEngine) Up(ctx context.Context, workingDir string) error {
	_, err := e.run(ctx, workingDir, "compose", "up", "-d")
	return err
}

// Running reports whether a container with the given name is up.
func (e *ComposeEngine) Running(ctx context.Context, containerName string) (bool, error) {
	output, err := e.run(ctx, "", "ps", "--filter", "name="+containerName, "--format", "{{.Names}}")
	if err != nil {
		return false, err
	}

	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == containerName {
			return true, nil
		}
	}

	return false, nil
}

// RestartDaemon restarts the container runtime daemon.
func (e *ComposeEngine) RestartDaemon(ctx context.Context) error {
	result, err := executor.New("systemctl", "restart", "docker").Execute(ctx,
		executor.WithCapture(true, true, true))
	if err != nil {
		output := ""
		if result != nil {
			output = strings.TrimSpace(result.Combined)
		}

		return fmt.Errorf("restart runtime daemon: %s: %w", output, err)
	}

	return nil
}
