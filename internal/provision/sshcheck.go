package provision

import (
	"context"

	"github.com/oshokin/dockhand/internal/logger"
)

// VerifyRemoteAccess checks that the provisioned account can run container
// commands over SSH. It is a post-condition probe, not part of the critical
// path: a failure is reported as a warning and never blocks the bootstrap.
func VerifyRemoteAccess(ctx context.Context, commander Commander, account string) {
	_, err := commander.Run(ctx,
		"ssh",
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		account+"@localhost",
		"docker", "ps")
	if err != nil {
		logger.WarnKV(ctx, "Remote container access check failed",
			"account", account, "error", err)

		return
	}

	logger.InfoKV(ctx, "Remote container access verified", "account", account)
}
