package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no check has been recorded yet.
var ErrNotFound = errors.New("no check recorded")

// CheckRecord is one persisted update check.
type CheckRecord struct {
	ID         int64     `json:"id"`
	CheckedAt  time.Time `json:"checkedAt"`
	Outcome    string    `json:"outcome"`
	Version    string    `json:"version,omitempty"`
	Error      string    `json:"error,omitempty"`
	InstanceID string    `json:"instanceId"`
}

type CheckReadRepository interface {
	RecentChecks(ctx context.Context, limit int) ([]CheckRecord, error)
	LatestCheck(ctx context.Context) (CheckRecord, error) // ErrNotFound when empty
}

type CheckWriteRepository interface {
	RecordCheck(ctx context.Context, rec CheckRecord) (int64, error)
}

type CheckRepository interface {
	CheckReadRepository
	CheckWriteRepository
}
