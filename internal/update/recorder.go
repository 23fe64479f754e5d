package update

import (
	"context"
	"time"
)

// CheckOutcome classifies a completed check.
type CheckOutcome string

const (
	OutcomeAvailable          CheckOutcome = "available"
	OutcomeNotAvailable       CheckOutcome = "not_available"
	OutcomeFailed             CheckOutcome = "failed"
	OutcomeTimeout            CheckOutcome = "timeout"
	OutcomeGatewayUnavailable CheckOutcome = "gateway_unavailable"
)

// CheckRecord is the history entry written after every owned check.
type CheckRecord struct {
	CheckedAt time.Time
	Outcome   CheckOutcome
	Version   string
	Error     string
}

// Recorder persists check history.
type Recorder interface {
	RecordCheck(ctx context.Context, rec CheckRecord) error
}
