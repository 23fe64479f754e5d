package update

import (
	"context"
	"errors"
	"fmt"

	"github.com/italolelis/updaterd/internal/logctx"
)

// ErrNoRestarter is returned by InstallUpdate when no restarter is configured.
var ErrNoRestarter = errors.New("no restarter configured")

// InstallUpdate emits the installing event and restarts the process into the
// installed version. It returns only when the restart could not happen.
func (c *Coordinator) InstallUpdate(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	logger := logctx.LoggerFromContext(ctx).With("component", "updater")

	logger.InfoContext(ctx, "installing update, restarting")
	c.emit(ctx, InstallingEvent())

	if c.restarter == nil {
		logger.ErrorContext(ctx, "cannot restart", "err", ErrNoRestarter)

		return ErrNoRestarter
	}

	if err := c.restarter.Restart(); err != nil {
		logger.ErrorContext(ctx, "restart failed", "err", err)

		return fmt.Errorf("failed to restart: %w", err)
	}

	return nil
}
