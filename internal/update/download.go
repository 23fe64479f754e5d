package update

import (
	"context"
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/updaterd/internal/logctx"
)

// DownloadUpdate downloads and applies the update found by the last check.
// It fails immediately with ErrDownloadInProgress when another download runs
// and with ErrNoUpdateAvailable when no update is pending. The gateway is asked
// again for a fresh handle before transferring. Download failures are
// returned as *DownloadFailedError and require a new check.
func (c *Coordinator) DownloadUpdate(ctx context.Context) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	logger := logctx.LoggerFromContext(ctx).With("component", "updater")

	if err := c.state.BeginDownload(); err != nil {
		logger.InfoContext(ctx, "download rejected", "reason", err.Error())

		return false, err
	}
	defer c.state.FinishDownload()

	pending := c.state.Snapshot().PendingVersion
	logger.InfoContext(ctx, "starting download", "version", pending)

	c.emit(ctx, ProgressEvent(Progress{}))

	gw, err := c.gateway()
	if err != nil {
		logger.ErrorContext(ctx, "update gateway unavailable", "err", err)

		return false, err
	}

	candidate, err := gw.Check(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "re-check before download failed", "err", err)

		return false, &CheckFailedError{Err: err}
	}

	if candidate == nil {
		logger.InfoContext(ctx, "update no longer available", "version", pending)
		c.state.ClearAvailable()

		return false, ErrNoUpdateAvailable
	}

	release := candidate.Release()
	info := release.descriptor(c.currentVersion)
	logger = logger.With("version", release.Version)

	start := c.now()
	tracker := newProgressTracker(c.progressInterval, c.now, func(p Progress) {
		c.emit(ctx, ProgressEvent(p))
	})

	err = c.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		return candidate.DownloadAndInstall(ctx,
			func(chunkSize int, total *uint64) {
				if total != nil {
					logger.DebugContext(ctx, "downloaded chunk", "chunk_size", chunkSize, "total", humanize.Bytes(*total))
				} else {
					logger.DebugContext(ctx, "downloaded chunk", "chunk_size", chunkSize)
				}

				tracker.add(chunkSize, total)
			},
			func() {
				downloaded := tracker.finish()
				logger.InfoContext(ctx, "download finished, installing", "downloaded", humanize.Bytes(downloaded))
			},
		)
	})

	c.telemetry.RecordDownloadedBytes(ctx, int64(tracker.downloadedBytes()))

	if err != nil {
		dlErr := &DownloadFailedError{Version: release.Version, Err: err}
		logger.ErrorContext(ctx, "download/install failed", "err", err, "duration", c.now().Sub(start).String())
		c.emit(ctx, ErrorEvent(dlErr.Error(), false))

		return false, dlErr
	}

	logger.InfoContext(ctx, "update installed successfully", "duration", c.now().Sub(start).String())
	c.state.ClearAvailable()
	c.emit(ctx, DownloadedEvent(info))

	return true, nil
}

// IsRejection reports whether err is a user-facing download rejection rather
// than a failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNoUpdateAvailable) || errors.Is(err, ErrDownloadInProgress)
}
