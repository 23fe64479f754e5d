package update

import (
	"sync"
	"time"
)

// progressTracker accumulates chunk sizes and publishes a Progress at most once
// per interval. The last value is always published on finish.
type progressTracker struct {
	mu sync.Mutex

	interval time.Duration
	now      func() time.Time
	publish  func(Progress)

	started    time.Time
	lastEmit   time.Time
	downloaded uint64
	total      uint64
	finished   bool
}

func newProgressTracker(interval time.Duration, now func() time.Time, publish func(Progress)) *progressTracker {
	t := now()

	return &progressTracker{
		interval: interval,
		now:      now,
		publish:  publish,
		started:  t,
		lastEmit: t,
	}
}

func (t *progressTracker) add(chunkSize int, total *uint64) {
	t.mu.Lock()

	if t.finished {
		t.mu.Unlock()

		return
	}

	if chunkSize > 0 {
		t.downloaded += uint64(chunkSize)
	}

	if total != nil {
		t.total = *total
	}

	now := t.now()
	if now.Sub(t.lastEmit) < t.interval {
		t.mu.Unlock()

		return
	}

	t.lastEmit = now
	p := t.snapshotLocked(now)
	t.mu.Unlock()

	t.publish(p)
}

// finish publishes the final progress and returns the downloaded byte count.
// Calls after the first are no-ops.
func (t *progressTracker) finish() uint64 {
	t.mu.Lock()

	if t.finished {
		downloaded := t.downloaded
		t.mu.Unlock()

		return downloaded
	}

	t.finished = true
	p := t.snapshotLocked(t.now())
	t.mu.Unlock()

	t.publish(p)

	return p.Downloaded
}

func (t *progressTracker) downloadedBytes() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.downloaded
}

func (t *progressTracker) snapshotLocked(now time.Time) Progress {
	p := Progress{Downloaded: t.downloaded, Total: t.total}

	if t.total > 0 {
		p.Percent = float64(t.downloaded) / float64(t.total) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}

	if elapsed := now.Sub(t.started); elapsed > 0 {
		p.BytesPerSecond = uint64(float64(t.downloaded) / elapsed.Seconds())
	}

	return p
}
