package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/updaterd/internal/storage"
)

const (
	defaultRecentLimit = 20

	// Fixed width so that checked_at sorts chronologically as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// CheckRepository implements storage.CheckRepository on SQLite.
type CheckRepository struct {
	db *sql.DB
}

func NewCheckRepository(db *sql.DB) *CheckRepository {
	return &CheckRepository{db: db}
}

func (r *CheckRepository) RecordCheck(ctx context.Context, rec storage.CheckRecord) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO update_checks (checked_at, outcome, version, error, instance_id) VALUES (?, ?, ?, ?, ?)`,
		rec.CheckedAt.UTC().Format(timeLayout), rec.Outcome, rec.Version, rec.Error, rec.InstanceID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert check: %w", err)
	}

	return res.LastInsertId()
}

// RecentChecks returns up to limit checks, newest first.
func (r *CheckRepository) RecentChecks(ctx context.Context, limit int) ([]storage.CheckRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, checked_at, outcome, version, error, instance_id FROM update_checks ORDER BY checked_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query checks: %w", err)
	}
	defer rows.Close()

	var records []storage.CheckRecord

	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checks: %w", err)
	}

	return records, nil
}

func (r *CheckRepository) LatestCheck(ctx context.Context) (storage.CheckRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, checked_at, outcome, version, error, instance_id FROM update_checks ORDER BY checked_at DESC, id DESC LIMIT 1`,
	)

	rec, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CheckRecord{}, storage.ErrNotFound
	}

	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(s scanner) (storage.CheckRecord, error) {
	var (
		rec       storage.CheckRecord
		checkedAt string
	)

	if err := s.Scan(&rec.ID, &checkedAt, &rec.Outcome, &rec.Version, &rec.Error, &rec.InstanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}

		return rec, fmt.Errorf("failed to scan check: %w", err)
	}

	t, err := time.Parse(timeLayout, checkedAt)
	if err != nil {
		return rec, fmt.Errorf("failed to parse checked_at %q: %w", checkedAt, err)
	}

	rec.CheckedAt = t

	return rec, nil
}
