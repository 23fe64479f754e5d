package update

import (
	"context"
	"time"

	"github.com/italolelis/updaterd/internal/logctx"
	"github.com/italolelis/updaterd/internal/telemetry"
)

const (
	DefaultWaitPoll         = 500 * time.Millisecond
	DefaultWaitAttempts     = 70 // 70 * 500ms = 35s
	DefaultCheckTimeout     = 30 * time.Second
	DefaultProgressInterval = time.Second
)

// Options tune a Coordinator. Zero values take the defaults above.
type Options struct {
	CurrentVersion   string
	WaitPoll         time.Duration
	WaitAttempts     int
	CheckTimeout     time.Duration
	ProgressInterval time.Duration

	Recorder  Recorder
	Telemetry *telemetry.Telemetry
	Now       func() time.Time
}

// Coordinator runs the check, download and install operations against one State.
type Coordinator struct {
	state     *State
	gateways  GatewayProvider
	sink      EventSink
	restarter Restarter
	recorder  Recorder
	telemetry *telemetry.Telemetry

	currentVersion   string
	waitPoll         time.Duration
	waitAttempts     int
	checkTimeout     time.Duration
	progressInterval time.Duration
	now              func() time.Time
}

func NewCoordinator(state *State, gateways GatewayProvider, sink EventSink, restarter Restarter, opts Options) *Coordinator {
	c := &Coordinator{
		state:            state,
		gateways:         gateways,
		sink:             sink,
		restarter:        restarter,
		recorder:         opts.Recorder,
		telemetry:        opts.Telemetry,
		currentVersion:   opts.CurrentVersion,
		waitPoll:         opts.WaitPoll,
		waitAttempts:     opts.WaitAttempts,
		checkTimeout:     opts.CheckTimeout,
		progressInterval: opts.ProgressInterval,
		now:              opts.Now,
	}

	if c.state == nil {
		c.state = NewState()
	}

	if c.waitPoll <= 0 {
		c.waitPoll = DefaultWaitPoll
	}

	if c.waitAttempts <= 0 {
		c.waitAttempts = DefaultWaitAttempts
	}

	if c.checkTimeout <= 0 {
		c.checkTimeout = DefaultCheckTimeout
	}

	if c.progressInterval <= 0 {
		c.progressInterval = DefaultProgressInterval
	}

	if c.now == nil {
		c.now = time.Now
	}

	return c
}

// Version returns the version of the running application.
func (c *Coordinator) Version() string {
	return c.currentVersion
}

// LastCheckTime returns when the last check completed.
func (c *Coordinator) LastCheckTime() (time.Time, bool) {
	return c.state.LastCheck()
}

func (c *Coordinator) Status() Status {
	return c.state.Status()
}

// Checking reports whether a check is in flight.
func (c *Coordinator) Checking() bool {
	return c.state.Checking()
}

func (c *Coordinator) emit(ctx context.Context, event Event) {
	c.telemetry.RecordUpdateEvent(ctx, string(event.Type))

	if c.sink == nil {
		return
	}

	if err := c.sink.Emit(ctx, EventTopic, event); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to emit event", "event_type", string(event.Type), "err", err)
	}
}

func (c *Coordinator) gateway() (Gateway, error) {
	if c.gateways == nil {
		return nil, &GatewayUnavailableError{}
	}

	gw, err := c.gateways()
	if err != nil {
		return nil, &GatewayUnavailableError{Err: err}
	}

	if gw == nil {
		return nil, &GatewayUnavailableError{}
	}

	return gw, nil
}
