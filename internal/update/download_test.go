package update

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	now := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

	return func() time.Time { return now }
}

func TestDownloadUpdate_NoUpdate(t *testing.T) {
	h := newHarness(Options{})

	ok, err := h.coord.DownloadUpdate(context.Background())

	assert.False(t, ok)
	require.ErrorIs(t, err, ErrNoUpdateAvailable)
	assert.True(t, IsRejection(err))
	assert.False(t, h.state.Snapshot().Downloading)
	assert.Empty(t, h.sink.Events())
	assert.Zero(t, h.gateway.calls.Load())
}

func TestDownloadUpdate_AvailableThenDownloaded(t *testing.T) {
	h := newHarness(Options{Now: fixedClock()})

	candidate := newCandidate("2.0.0")
	candidate.downloadFn = func(_ context.Context, onChunk ChunkFunc, onFinished func()) error {
		total := uint64(100)
		onChunk(40, &total)
		onChunk(60, &total)
		onFinished()

		return nil
	}
	h.gateway.checkFn = returning(candidate)

	result := h.coord.CheckForUpdates(context.Background())
	require.True(t, result.Available)
	assert.Equal(t, StatusAvailable, h.coord.Status())

	ok, err := h.coord.DownloadUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []EventType{
		EventChecking,
		EventAvailable,
		EventProgress,
		EventProgress,
		EventDownloaded,
	}, h.sink.Types())

	events := h.sink.Events()
	assert.Equal(t, Progress{}, *events[2].Progress)
	assert.Equal(t, Progress{Downloaded: 100, Total: 100, Percent: 100}, *events[3].Progress)
	assert.Equal(t, "2.0.0", events[4].Info.Version)
	assert.Equal(t, "1.0.0", events[4].Info.CurrentVersion)

	assert.Equal(t, StatusIdle, h.coord.Status())
	assert.False(t, h.state.Snapshot().HasUpdate)
	assert.Equal(t, int32(2), h.gateway.calls.Load(), "download re-queries the gateway")
}

func TestDownloadUpdate_UpdateDisappeared(t *testing.T) {
	h := newHarness(Options{})
	h.state.SetAvailable("2.0.0", "")

	ok, err := h.coord.DownloadUpdate(context.Background())

	assert.False(t, ok)
	require.ErrorIs(t, err, ErrNoUpdateAvailable)
	assert.False(t, h.state.Snapshot().HasUpdate)
	assert.False(t, h.state.Snapshot().Downloading)
	assert.Equal(t, []EventType{EventProgress}, h.sink.Types())
}

func TestDownloadUpdate_RecheckFails(t *testing.T) {
	h := newHarness(Options{})
	h.state.SetAvailable("2.0.0", "")
	h.gateway.checkFn = func(context.Context) (Candidate, error) { return nil, errBoom }

	ok, err := h.coord.DownloadUpdate(context.Background())

	assert.False(t, ok)

	var checkErr *CheckFailedError
	require.ErrorAs(t, err, &checkErr)
	require.ErrorIs(t, err, errBoom)
	assert.True(t, Recoverable(err))
	assert.True(t, h.state.Snapshot().HasUpdate)
	assert.False(t, h.state.Snapshot().Downloading)
}

func TestDownloadUpdate_GatewayUnavailable(t *testing.T) {
	st := NewState()
	st.SetAvailable("2.0.0", "")

	coord := NewCoordinator(st, func() (Gateway, error) { return nil, errBoom }, &recordingSink{}, nil, Options{})

	ok, err := coord.DownloadUpdate(context.Background())

	assert.False(t, ok)

	var gwErr *GatewayUnavailableError
	require.ErrorAs(t, err, &gwErr)
	assert.False(t, st.Snapshot().Downloading)
}

func TestDownloadUpdate_Failure(t *testing.T) {
	h := newHarness(Options{})
	h.state.SetAvailable("2.0.0", "")

	candidate := newCandidate("2.0.0")
	candidate.downloadFn = func(context.Context, ChunkFunc, func()) error {
		return errors.New("signature mismatch")
	}
	h.gateway.checkFn = returning(candidate)

	ok, err := h.coord.DownloadUpdate(context.Background())

	assert.False(t, ok)

	var dlErr *DownloadFailedError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, "2.0.0", dlErr.Version)
	assert.False(t, Recoverable(err))
	assert.False(t, h.state.Snapshot().Downloading)

	events := h.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, "download/install of 2.0.0 failed: signature mismatch", events[1].Message)
	assert.False(t, events[1].Recoverable)
}

func TestDownloadUpdate_ConcurrentCallsRejected(t *testing.T) {
	h := newHarness(Options{})
	h.state.SetAvailable("2.0.0", "")

	started := make(chan struct{})
	release := make(chan struct{})

	candidate := newCandidate("2.0.0")
	candidate.downloadFn = func(_ context.Context, _ ChunkFunc, onFinished func()) error {
		close(started)
		<-release
		onFinished()

		return nil
	}
	h.gateway.checkFn = returning(candidate)

	var (
		wg       sync.WaitGroup
		firstOK  bool
		firstErr error
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		firstOK, firstErr = h.coord.DownloadUpdate(context.Background())
	}()

	<-started
	assert.Equal(t, StatusDownloading, h.coord.Status())

	ok, err := h.coord.DownloadUpdate(context.Background())
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrDownloadInProgress)
	assert.True(t, IsRejection(err))

	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.True(t, firstOK)
	assert.Equal(t, StatusIdle, h.coord.Status())
}

func TestInstallUpdate(t *testing.T) {
	sink := &recordingSink{}

	var restarted bool

	coord := NewCoordinator(nil, nil, sink, RestarterFunc(func() error {
		restarted = true

		return nil
	}), Options{})

	require.NoError(t, coord.InstallUpdate(context.Background()))
	assert.True(t, restarted)
	assert.Equal(t, []EventType{EventInstalling}, sink.Types())
}

func TestInstallUpdate_RestartFails(t *testing.T) {
	coord := NewCoordinator(nil, nil, &recordingSink{}, RestarterFunc(func() error { return errBoom }), Options{})

	err := coord.InstallUpdate(context.Background())
	require.ErrorIs(t, err, errBoom)
}

func TestInstallUpdate_NoRestarter(t *testing.T) {
	coord := NewCoordinator(nil, nil, nil, nil, Options{})

	require.ErrorIs(t, coord.InstallUpdate(context.Background()), ErrNoRestarter)
}
