package storage

import (
	"context"

	"github.com/italolelis/updaterd/internal/update"
)

// Recorder stores the coordinator's check records, tagged with this process.
type Recorder struct {
	repo       CheckWriteRepository
	instanceID string
}

func NewRecorder(repo CheckWriteRepository, instanceID string) *Recorder {
	return &Recorder{repo: repo, instanceID: instanceID}
}

func (r *Recorder) RecordCheck(ctx context.Context, rec update.CheckRecord) error {
	_, err := r.repo.RecordCheck(ctx, CheckRecord{
		CheckedAt:  rec.CheckedAt,
		Outcome:    string(rec.Outcome),
		Version:    rec.Version,
		Error:      rec.Error,
		InstanceID: r.instanceID,
	})

	return err
}
