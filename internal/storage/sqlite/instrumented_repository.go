package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/italolelis/updaterd/internal/storage"
	"github.com/italolelis/updaterd/internal/telemetry"
)

// InstrumentedCheckRepository wraps CheckRepository with telemetry.
type InstrumentedCheckRepository struct {
	repo      *CheckRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedCheckRepository(db *sql.DB, tel *telemetry.Telemetry) *InstrumentedCheckRepository {
	return &InstrumentedCheckRepository{
		repo:      NewCheckRepository(db),
		telemetry: tel,
	}
}

func (r *InstrumentedCheckRepository) RecordCheck(ctx context.Context, rec storage.CheckRecord) (int64, error) {
	var id int64

	err := r.telemetry.InstrumentDBOperation(ctx, "record_check", func(ctx context.Context) error {
		var err error

		id, err = r.repo.RecordCheck(ctx, rec)

		return err
	})

	return id, err
}

func (r *InstrumentedCheckRepository) RecentChecks(ctx context.Context, limit int) ([]storage.CheckRecord, error) {
	var records []storage.CheckRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "recent_checks", func(ctx context.Context) error {
		var err error

		records, err = r.repo.RecentChecks(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *InstrumentedCheckRepository) LatestCheck(ctx context.Context) (storage.CheckRecord, error) {
	var rec storage.CheckRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "latest_check", func(ctx context.Context) error {
		var err error

		rec, err = r.repo.LatestCheck(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			// An empty history is not a database failure.
			return nil
		}

		return err
	})
	if err != nil {
		return storage.CheckRecord{}, err
	}

	if rec.ID == 0 {
		return storage.CheckRecord{}, storage.ErrNotFound
	}

	return rec, nil
}
