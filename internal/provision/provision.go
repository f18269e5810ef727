package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/executor"

	"github.com/oshokin/dockhand/internal/logger"
)

// State is the result of probing the host for one provisioning step.
type State int

const (
	// StateAbsent means the step still has work to do.
	StateAbsent State = iota
	// StatePresent means the step is a no-op on this host.
	StatePresent
)

// Step is one idempotent privileged host mutation.
// Detect re-derives from host inspection whether Apply is a no-op;
// no provisioning state is stored anywhere else.
type Step interface {
	// Name identifies the step in logs and errors.
	Name() string
	// Detect probes the host without mutating it.
	Detect(ctx context.Context) (State, error)
	// Apply performs the mutation. It is only called when Detect
	// reported StateAbsent.
	Apply(ctx context.Context) error
}

// Asserter is an optional step extension whose Assert runs on every pass,
// Present or not. Used for bits unrelated host activity can reset, like
// ownership of the container-runtime control socket.
type Asserter interface {
	Assert(ctx context.Context) error
}

// Advisory marks steps whose failure degrades to a warning instead of
// aborting the run.
type Advisory interface {
	Advisory() bool
}

// ErrStepFailed wraps a fatal provisioning failure.
var ErrStepFailed = errors.New("provisioning step failed")

// Commander runs a host command and returns its combined output.
// Steps depend on this interface so tests never touch a real host.
type Commander interface {
	Run(ctx context.Context, program string, args ...string) (string, error)
}

// ExecCommander is the production Commander backed by the executor library.
type ExecCommander struct{}

// Run executes the program with captured output.
func (ExecCommander) Run(ctx context.Context, program string, args ...string) (string, error) {
	result, err := executor.New(program, args...).Execute(ctx,
		executor.WithCapture(true, true, true))
	if err != nil {
		output := ""
		if result != nil {
			output = strings.TrimSpace(result.Combined)
		}

		return output, fmt.Errorf("%s %s: %w", program, strings.Join(args, " "), err)
	}

	return strings.TrimSpace(result.Stdout), nil
}

// Run executes the provided steps in order.
//
// Present steps are skipped with a warning, absent steps are applied, and
// every step's Assert (when implemented) runs afterwards regardless.
// Fatal steps abort on the first failure; advisory steps degrade to a
// warning and the sequence continues.
func Run(ctx context.Context, steps []Step) error {
	ctx = logger.WithName(ctx, "provision")

	for _, step := range steps {
		if err := runStep(ctx, step); err != nil {
			return err
		}
	}

	return nil
}

func runStep(ctx context.Context, step Step) error {
	state, err := step.Detect(ctx)
	if err != nil {
		return fmt.Errorf("%s: detect: %w (%w)", step.Name(), err, ErrStepFailed)
	}

	switch state {
	case StatePresent:
		logger.WarnKV(ctx, "Step already satisfied, skipping", "step", step.Name())
	case StateAbsent:
		logger.InfoKV(ctx, "Applying step", "step", step.Name())

		if err = step.Apply(ctx); err != nil {
			if adv, ok := step.(Advisory); ok && adv.Advisory() {
				logger.WarnKV(ctx, "Advisory step failed, continuing",
					"step", step.Name(), "error", err)
			} else {
				return fmt.Errorf("%s: %w (%w)", step.Name(), err, ErrStepFailed)
			}
		}
	}

	if asserter, ok := step.(Asserter); ok {
		if err = asserter.Assert(ctx); err != nil {
			return fmt.Errorf("%s: assert: %w (%w)", step.Name(), err, ErrStepFailed)
		}
	}

	return nil
}
