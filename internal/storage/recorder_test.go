package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/italolelis/updaterd/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWriter struct {
	records []CheckRecord
	err     error
}

func (m *memoryWriter) RecordCheck(_ context.Context, rec CheckRecord) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}

	m.records = append(m.records, rec)

	return int64(len(m.records)), nil
}

func TestRecorderTagsInstance(t *testing.T) {
	w := &memoryWriter{}
	r := NewRecorder(w, "host-1-abcd")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := r.RecordCheck(context.Background(), update.CheckRecord{
		CheckedAt: at,
		Outcome:   update.OutcomeAvailable,
		Version:   "1.3.0",
	})

	require.NoError(t, err)
	require.Len(t, w.records, 1)
	assert.Equal(t, CheckRecord{
		CheckedAt:  at,
		Outcome:    "available",
		Version:    "1.3.0",
		InstanceID: "host-1-abcd",
	}, w.records[0])
}

func TestRecorderPropagatesErrors(t *testing.T) {
	boom := errors.New("disk full")
	r := NewRecorder(&memoryWriter{err: boom}, "x")

	err := r.RecordCheck(context.Background(), update.CheckRecord{Outcome: update.OutcomeFailed, Error: "timeout"})

	assert.ErrorIs(t, err, boom)
}
