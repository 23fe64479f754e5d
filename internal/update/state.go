package update

import (
	"sync"
	"time"
)

// State is the shared record of in-flight operations and the last check outcome.
// A single mutex guards every field, so flag transitions and the pending update
// are always observed together.
type State struct {
	mu sync.Mutex

	checking    bool
	downloading bool
	hasUpdate   bool

	pendingVersion string
	pendingNotes   string
	lastCheck      time.Time

	// checkSeq is the token of the latest check owner, checkDone the highest
	// token that finished. Waiters compare them to tell completion apart from
	// a forced release.
	checkSeq  uint64
	checkDone uint64
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	Checking       bool
	Downloading    bool
	HasUpdate      bool
	PendingVersion string
	PendingNotes   string
	LastCheck      time.Time
}

// NewState returns an idle state.
func NewState() *State {
	return &State{}
}

// TryBeginCheck flips checking from false to true and reports whether this caller
// won. The returned token identifies the owner to FinishCheck.
func (s *State) TryBeginCheck() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checking {
		return 0, false
	}

	s.checking = true
	s.checkSeq++

	return s.checkSeq, true
}

// Checking reports whether a check is in flight.
func (s *State) Checking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.checking
}

// ForceReleaseCheck clears a checking flag that was held for too long.
func (s *State) ForceReleaseCheck() {
	s.mu.Lock()
	s.checking = false
	s.mu.Unlock()
}

// FinishCheck records the completion time and releases the checking flag if
// token still owns it. An owner whose flag was force-released does not clear
// the flag of the check that replaced it.
func (s *State) FinishCheck(token uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCheck = at

	if token > s.checkDone {
		s.checkDone = token
	}

	if s.checking && s.checkSeq == token {
		s.checking = false
	}
}

// checkProgress returns the token of the latest started check, whether a check
// is in flight and the highest token that has finished.
func (s *State) checkProgress() (started uint64, checking bool, finished uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.checkSeq, s.checking, s.checkDone
}

// BeginDownload claims the downloading flag. It requires a discovered update.
func (s *State) BeginDownload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.downloading {
		return ErrDownloadInProgress
	}

	if !s.hasUpdate {
		return ErrNoUpdateAvailable
	}

	s.downloading = true

	return nil
}

// FinishDownload releases the downloading flag.
func (s *State) FinishDownload() {
	s.mu.Lock()
	s.downloading = false
	s.mu.Unlock()
}

// SetAvailable stores a discovered update.
func (s *State) SetAvailable(version, notes string) {
	s.mu.Lock()
	s.hasUpdate = true
	s.pendingVersion = version
	s.pendingNotes = notes
	s.mu.Unlock()
}

// ClearAvailable drops the discovered update and its details.
func (s *State) ClearAvailable() {
	s.mu.Lock()
	s.hasUpdate = false
	s.pendingVersion = ""
	s.pendingNotes = ""
	s.mu.Unlock()
}

// RestoreLastCheck seeds the last check time, e.g. from persisted history.
// It never moves the timestamp backwards.
func (s *State) RestoreLastCheck(at time.Time) {
	s.mu.Lock()
	if at.After(s.lastCheck) {
		s.lastCheck = at
	}
	s.mu.Unlock()
}

// LastCheck returns the completion time of the last check, if any.
func (s *State) LastCheck() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastCheck, !s.lastCheck.IsZero()
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Checking:       s.checking,
		Downloading:    s.downloading,
		HasUpdate:      s.hasUpdate,
		PendingVersion: s.pendingVersion,
		PendingNotes:   s.pendingNotes,
		LastCheck:      s.lastCheck,
	}
}

// Status collapses the state into a single value.
// Downloading wins over checking, which wins over a pending update.
func (s *State) Status() Status {
	snap := s.Snapshot()

	switch {
	case snap.Downloading:
		return StatusDownloading
	case snap.Checking:
		return StatusChecking
	case snap.HasUpdate:
		return StatusAvailable
	default:
		return StatusIdle
	}
}
