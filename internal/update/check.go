package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/italolelis/updaterd/internal/logctx"
)

// CheckForUpdates asks the gateway for a newer release. Only one check runs at a
// time: callers arriving while a check is in flight wait for it and get its
// cached outcome. A check held for longer than the wait ceiling is considered
// stuck, is released and this caller runs its own.
//
// Failures never surface as Go errors; they are carried in the result and
// emitted as recoverable error events. Cancelling ctx does not abort the check.
func (c *Coordinator) CheckForUpdates(ctx context.Context) CheckResult {
	ctx = context.WithoutCancel(ctx)
	logger := logctx.LoggerFromContext(ctx).With("component", "updater")

	if c.waitForPriorCheck(ctx, logger) {
		logger.DebugContext(ctx, "previous check completed while waiting, returning its outcome")

		return c.cachedResult()
	}

	token, owner := c.state.TryBeginCheck()
	if !owner {
		logger.InfoContext(ctx, "check already in progress, returning current state")

		return c.cachedResult()
	}

	start := c.now()

	var rec CheckRecord

	defer func() {
		finished := c.now()
		c.state.FinishCheck(token, finished)

		rec.CheckedAt = finished
		c.telemetry.RecordUpdateCheck(ctx, string(rec.Outcome), finished.Sub(start))
		c.recordCheck(ctx, rec)
	}()

	logger.InfoContext(ctx, "starting update check")
	c.emit(ctx, CheckingEvent())

	var result CheckResult

	_ = c.telemetry.InstrumentOperation(ctx, "update_check", "updater", func(ctx context.Context) error {
		result, rec = c.runCheck(ctx, logger)
		if result.Error != nil {
			return errors.New(*result.Error)
		}

		return nil
	})

	return result
}

// waitForPriorCheck blocks while another check is in flight and reports whether
// that check completed normally. It returns false right away when nothing is
// running, and false after force-releasing a check that exceeded the ceiling.
func (c *Coordinator) waitForPriorCheck(ctx context.Context, logger *slog.Logger) bool {
	awaited, checking, _ := c.state.checkProgress()
	if !checking {
		return false
	}

	for attempt := 0; attempt < c.waitAttempts; attempt++ {
		time.Sleep(c.waitPoll)

		_, checking, finished := c.state.checkProgress()
		if finished >= awaited {
			return true
		}

		if !checking {
			// Released without finishing, e.g. by another waiter.
			return false
		}
	}

	logger.WarnContext(ctx, "timeout waiting for previous check to complete",
		"waited", (time.Duration(c.waitAttempts) * c.waitPoll).String())
	c.state.ForceReleaseCheck()

	return false
}

func (c *Coordinator) cachedResult() CheckResult {
	snap := c.state.Snapshot()
	if !snap.HasUpdate {
		return CheckResult{Available: false}
	}

	info := Release{Version: snap.PendingVersion, Notes: snap.PendingNotes}.descriptor(c.currentVersion)

	return CheckResult{Available: true, Info: &info}
}

func (c *Coordinator) runCheck(ctx context.Context, logger *slog.Logger) (CheckResult, CheckRecord) {
	gw, err := c.gateway()
	if err != nil {
		msg := err.Error()
		logger.ErrorContext(ctx, "update gateway unavailable", "err", err)
		c.emit(ctx, ErrorEvent(msg, true))

		return errorResult(msg), CheckRecord{Outcome: OutcomeGatewayUnavailable, Error: msg}
	}

	candidate, err := c.checkWithTimeout(ctx, gw)

	switch {
	case errors.Is(err, ErrCheckTimeout):
		msg := ErrCheckTimeout.Error()
		logger.ErrorContext(ctx, msg, "timeout", c.checkTimeout.String())
		c.emit(ctx, ErrorEvent(msg, true))

		return errorResult(msg), CheckRecord{Outcome: OutcomeTimeout, Error: msg}
	case err != nil:
		checkErr := &CheckFailedError{Err: err}
		msg := checkErr.Error()
		logger.ErrorContext(ctx, "update check failed", "err", err)
		c.emit(ctx, ErrorEvent(msg, true))

		return errorResult(msg), CheckRecord{Outcome: OutcomeFailed, Error: msg}
	case candidate == nil:
		logger.InfoContext(ctx, "no update available", "current_version", c.currentVersion)
		c.state.ClearAvailable()
		c.emit(ctx, NotAvailableEvent(c.currentVersion))

		return CheckResult{Available: false}, CheckRecord{Outcome: OutcomeNotAvailable}
	}

	release := candidate.Release()
	info := release.descriptor(c.currentVersion)

	logger.InfoContext(ctx, "update available", "current_version", c.currentVersion, "version", release.Version)
	c.state.SetAvailable(release.Version, release.Notes)
	c.emit(ctx, AvailableEvent(info))

	return CheckResult{Available: true, Info: &info}, CheckRecord{Outcome: OutcomeAvailable, Version: release.Version}
}

type checkOutcome struct {
	candidate Candidate
	err       error
}

// checkWithTimeout bounds gw.Check by the check timeout even when the gateway
// does not honour its context.
func (c *Coordinator) checkWithTimeout(ctx context.Context, gw Gateway) (Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	done := make(chan checkOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.telemetry.RecordSystemError(ctx, "updater", "panic")
				done <- checkOutcome{err: fmt.Errorf("gateway panic: %v", r)}
			}
		}()

		candidate, err := gw.Check(ctx)
		done <- checkOutcome{candidate: candidate, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, ErrCheckTimeout
		}

		return out.candidate, out.err
	case <-ctx.Done():
		select {
		case out := <-done:
			if out.err == nil {
				return out.candidate, nil
			}
		default:
		}

		return nil, ErrCheckTimeout
	}
}

func (c *Coordinator) recordCheck(ctx context.Context, rec CheckRecord) {
	if c.recorder == nil {
		return
	}

	if err := c.recorder.RecordCheck(ctx, rec); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to record update check", "outcome", string(rec.Outcome), "err", err)
	}
}
