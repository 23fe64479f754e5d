package update

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeGateway struct {
	calls   atomic.Int32
	checkFn func(ctx context.Context) (Candidate, error)
}

func (g *fakeGateway) Check(ctx context.Context) (Candidate, error) {
	g.calls.Add(1)

	if g.checkFn == nil {
		return nil, nil
	}

	return g.checkFn(ctx)
}

func returning(c Candidate) func(context.Context) (Candidate, error) {
	return func(context.Context) (Candidate, error) { return c, nil }
}

type fakeCandidate struct {
	release    Release
	downloadFn func(ctx context.Context, onChunk ChunkFunc, onFinished func()) error
}

func (c *fakeCandidate) Release() Release { return c.release }

func (c *fakeCandidate) DownloadAndInstall(ctx context.Context, onChunk ChunkFunc, onFinished func()) error {
	if c.downloadFn == nil {
		onFinished()

		return nil
	}

	return c.downloadFn(ctx, onChunk, onFinished)
}

func newCandidate(version string) *fakeCandidate {
	return &fakeCandidate{release: Release{
		Version:     version,
		Notes:       "bug fixes",
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
}

type recordingSink struct {
	mu     sync.Mutex
	topics []string
	events []Event
	err    error
}

func (s *recordingSink) Emit(_ context.Context, topic string, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topics = append(s.topics, topic)
	s.events = append(s.events, event)

	return s.err
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Event(nil), s.events...)
}

func (s *recordingSink) Types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type)
	}

	return types
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []CheckRecord
	err     error
}

func (r *fakeRecorder) RecordCheck(_ context.Context, rec CheckRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)

	return r.err
}

func (r *fakeRecorder) Records() []CheckRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]CheckRecord(nil), r.records...)
}

var errBoom = errors.New("boom")

type harness struct {
	state    *State
	gateway  *fakeGateway
	sink     *recordingSink
	recorder *fakeRecorder
	coord    *Coordinator
}

func newHarness(opts Options) *harness {
	h := &harness{
		state:    NewState(),
		gateway:  &fakeGateway{},
		sink:     &recordingSink{},
		recorder: &fakeRecorder{},
	}

	if opts.CurrentVersion == "" {
		opts.CurrentVersion = "1.0.0"
	}

	if opts.WaitPoll == 0 {
		opts.WaitPoll = 5 * time.Millisecond
	}

	opts.Recorder = h.recorder
	h.coord = NewCoordinator(h.state, StaticGateway(h.gateway), h.sink, nil, opts)

	return h
}
