package update

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/italolelis/updaterd/internal/logctx"
)

const (
	DefaultInitialDelay  = 30 * time.Second
	DefaultCheckInterval = 4 * time.Hour
)

// Scheduler runs periodic background checks for one Coordinator.
type Scheduler struct {
	coordinator  *Coordinator
	initialDelay time.Duration
	interval     time.Duration

	started atomic.Bool
	done    chan struct{}
}

// NewScheduler returns a scheduler. Non-positive durations take the defaults.
func NewScheduler(c *Coordinator, initialDelay, interval time.Duration) *Scheduler {
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}

	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	return &Scheduler{
		coordinator:  c,
		initialDelay: initialDelay,
		interval:     interval,
		done:         make(chan struct{}),
	}
}

// Start launches the background loop and reports whether this call started it.
// The loop stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) bool {
	logger := logctx.LoggerFromContext(ctx).With("component", "update_scheduler")

	if !s.started.CompareAndSwap(false, true) {
		logger.WarnContext(ctx, "background update checker already started")

		return false
	}

	logger.InfoContext(ctx, "starting background update checker",
		"initial_delay", s.initialDelay.String(),
		"interval", s.interval.String())

	go s.run(logctx.WithLogger(ctx, logger))

	return true
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	logger := logctx.LoggerFromContext(ctx)

	delay := time.NewTimer(s.initialDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		logger.InfoContext(ctx, "background update checker shutdown", "reason", "context_cancelled")

		return
	case <-delay.C:
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "background update checker shutdown", "reason", "context_cancelled")

			return
		case <-ticker.C:
		}
	}
}

// tick runs one scheduled check unless one is already in flight.
func (s *Scheduler) tick(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			s.coordinator.telemetry.RecordSystemError(ctx, "scheduler", "panic")
			logger.ErrorContext(ctx, "background update check panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if s.coordinator.Checking() {
		logger.DebugContext(ctx, "check already in progress, skipping scheduled check")

		return
	}

	logger.DebugContext(ctx, "running scheduled update check")

	_ = s.coordinator.CheckForUpdates(ctx)
}
