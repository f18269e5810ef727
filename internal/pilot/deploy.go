package pilot

import (
	"context"
	"time"

	"github.com/oshokin/dockhand/internal/logger"
)

// TriggerInitialDeployment confirms the pilot is healthy and issues a single
// deployment request for the named package.
//
// Health exhaustion is fatal: a deployment request against an unconfirmed
// pilot is meaningless. A failed trigger after that is expected on a brand
// new install (the pilot may not know the package yet) and is downgraded to
// an informational outcome; the pilot self-heals it on its own polling
// cycle. The returned bool reports whether the trigger was accepted.
func (c *Client) TriggerInitialDeployment(
	ctx context.Context,
	packageName string,
	healthAttempts int,
	healthDelay time.Duration,
) (bool, error) {
	if err := c.WaitHealthy(ctx, healthAttempts, healthDelay); err != nil {
		return false, err
	}

	if err := c.TriggerUpdate(ctx, packageName); err != nil {
		logger.InfoKV(ctx, "Initial deployment not triggered; the pilot will pick the package up on its next poll",
			"package", packageName, "reason", err)

		return false, nil
	}

	logger.InfoKV(ctx, "Initial deployment triggered", "package", packageName)

	return true, nil
}
