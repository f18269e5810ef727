package launch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/dockhand/internal/logger"
)

// Engine abstracts the container runtime operations a launch needs,
// so tests can drive the state machine without a real host.
type Engine interface {
	// Pull fetches the workload's image in the compose working directory.
	Pull(ctx context.Context, workingDir string) error
	// Up starts the workload detached.
	Up(ctx context.Context, workingDir string) error
	// Running reports whether a container with the given name is up.
	Running(ctx context.Context, containerName string) (bool, error)
	// RestartDaemon restarts the runtime daemon to clear cached DNS state.
	RestartDaemon(ctx context.Context) error
}

// state enumerates the launch state machine.
type state int

const (
	statePulling state = iota
	stateStarting
	stateVerifying
	stateRetrying
	stateHealthy
	stateFailed
)

// ErrExhausted is returned when the retry budget is consumed.
var ErrExhausted = errors.New("workload launch attempts exhausted")

// ExhaustedError carries the terminal failure with remediation hints.
type ExhaustedError struct {
	// Attempts is how many full attempts were made.
	Attempts int
	// LastErr is the failure of the final attempt.
	LastErr error
	// Hints are concrete remediation suggestions for the operator.
	Hints []string
}

// Error renders the failure with its hints.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("workload did not start after %d attempts: %v (hints: %s)",
		e.Attempts, e.LastErr, strings.Join(e.Hints, "; "))
}

// Unwrap exposes ErrExhausted and the last attempt's error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.LastErr}
}

// networkSignatures are error-text fragments that indicate a transient
// network or DNS fault rather than a logic error.
var networkSignatures = []string{
	"no such host",
	"temporary failure in name resolution",
	"name resolution",
	"network is unreachable",
	"connection refused",
	"i/o timeout",
	"tls handshake timeout",
}

// isNetworkFailure classifies an error by inspecting its text.
func isNetworkFailure(err error) bool {
	if err == nil {
		return false
	}

	text := strings.ToLower(err.Error())
	for _, signature := range networkSignatures {
		if strings.Contains(text, signature) {
			return true
		}
	}

	return false
}

// diagnosticHints are surfaced on exhaustion.
var diagnosticHints = []string{
	"check outbound connectivity (curl -fsS https://registry-1.docker.io/v2/)",
	"check DNS resolution (getent hosts registry-1.docker.io)",
	"if the host is IPv6-only, configure registry mirrors reachable over IPv6",
}

// errNotRunning is the verification failure for a crashed-on-start container.
var errNotRunning = errors.New("container is not running after start")

// Launcher drives the workload start retry state machine.
type Launcher struct {
	engine        Engine
	containerName string
	settleDelay   time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// Option configures launcher behaviour.
type Option func(*Launcher)

// WithSettleDelay overrides the fixed wait between start and verification.
func WithSettleDelay(d time.Duration) Option {
	return func(l *Launcher) {
		if d >= 0 {
			l.settleDelay = d
		}
	}
}

// WithSleeper overrides the delay function, letting tests skip real time.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Launcher) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// defaultSettleDelay gives a started container time to crash if it will.
const defaultSettleDelay = 5 * time.Second

// NewLauncher creates a launcher for the named workload container.
func NewLauncher(engine Engine, containerName string, opts ...Option) *Launcher {
	l := &Launcher{
		engine:        engine,
		containerName: containerName,
		settleDelay:   defaultSettleDelay,
		sleep:         sleepContext,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// sleepContext waits for the duration unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start runs the launch state machine until the workload is verified
// running or the attempt budget is exhausted.
//
// Transitions: Pulling -> Starting -> Verifying -> Healthy, with any
// failure moving to Retrying and back to Pulling. A pull failure with a
// network/DNS signature on exactly the second attempt triggers a one-time
// daemon restart before the next pull; the corrective action is never
// repeated within one launch sequence, to avoid flapping the daemon.
func (l *Launcher) Start(ctx context.Context, workingDir string, maxAttempts int, baseDelay time.Duration) error {
	ctx = logger.WithName(ctx, "launch")

	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		attempt           int
		correctiveApplied bool
		lastErr           error
		current           = statePulling
	)

	attempt = 1

	for {
		switch current {
		case statePulling:
			logger.InfoKV(ctx, "Pulling workload image",
				"attempt", attempt, "max_attempts", maxAttempts)

			if err := l.engine.Pull(ctx, workingDir); err != nil {
				lastErr = fmt.Errorf("pull: %w", err)

				if isNetworkFailure(err) && attempt == 2 && !correctiveApplied {
					logger.Warn(ctx, "Network fault signature detected, restarting runtime daemon once")

					if restartErr := l.engine.RestartDaemon(ctx); restartErr != nil {
						logger.WarnKV(ctx, "Daemon restart failed", "error", restartErr)
					}

					correctiveApplied = true
				}

				current = stateRetrying

				continue
			}

			current = stateStarting

		case stateStarting:
			logger.Info(ctx, "Starting workload")

			if err := l.engine.Up(ctx, workingDir); err != nil {
				lastErr = fmt.Errorf("start: %w", err)
				current = stateRetrying

				continue
			}

			current = stateVerifying

		case stateVerifying:
			// Pull and start succeeding is necessary but not sufficient:
			// a crashed-on-start container must count as attempt failure.
			if err := l.sleep(ctx, l.settleDelay); err != nil {
				return err
			}

			running, err := l.engine.Running(ctx, l.containerName)
			if err != nil {
				lastErr = fmt.Errorf("verify: %w", err)
				current = stateRetrying

				continue
			}

			if !running {
				lastErr = fmt.Errorf("verify %s: %w", l.containerName, errNotRunning)
				current = stateRetrying

				continue
			}

			current = stateHealthy

		case stateRetrying:
			logger.WarnKV(ctx, "Launch attempt failed",
				"attempt", attempt, "error", lastErr)

			if attempt >= maxAttempts {
				current = stateFailed
				continue
			}

			// Fixed delay before each retry, none after the final failure.
			if err := l.sleep(ctx, baseDelay); err != nil {
				return err
			}

			attempt++
			current = statePulling

		case stateHealthy:
			logger.InfoKV(ctx, "Workload is running",
				"container", l.containerName, "attempts", attempt)

			return nil

		case stateFailed:
			return &ExhaustedError{
				Attempts: maxAttempts,
				LastErr:  lastErr,
				Hints:    diagnosticHints,
			}
		}
	}
}
