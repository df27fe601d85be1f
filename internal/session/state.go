// Package session tracks the availability of one forwarding session: whether
// it is actively relaying, paused (manually or by a platform rate limit), or
// stopped on a terminal error.
package session

import (
	"sync"
	"time"
)

// Status is the availability of a session.
type Status string

const (
	// StatusActive means the session is forwarding normally.
	StatusActive Status = "active"
	// StatusPaused means forwarding is suspended, either by an operator or
	// automatically after a platform rate limit.
	StatusPaused Status = "paused"
	// StatusError means the session hit a terminal failure and stays down
	// until an operator intervenes.
	StatusError Status = "error"
)

// Snapshot is a point-in-time copy of a session's state, safe to read
// without holding any lock. A zero FloodWaitUntil means no flood wait
// deadline is set.
type Snapshot struct {
	OwnerID        string
	Status         Status
	AutoPaused     bool
	PauseReason    string
	FloodWaitUntil time.Time
	LastError      string
	LastActive     time.Time
}

// State is the mutable availability state of one session. All methods are
// safe for concurrent use. A non-zero flood wait deadline implies the
// session is paused with AutoPaused set.
type State struct {
	mu sync.Mutex

	ownerID        string
	status         Status
	autoPaused     bool
	pauseReason    string
	floodWaitUntil time.Time
	lastError      string
	lastActive     time.Time
}

// NewState creates an active session state for the given owner.
func NewState(ownerID string) *State {
	return &State{
		ownerID:    ownerID,
		status:     StatusActive,
		lastActive: time.Now().UTC(),
	}
}

// Restore rebuilds a session state from a persisted snapshot, typically after
// a process restart.
func Restore(snap Snapshot) *State {
	s := &State{
		ownerID:        snap.OwnerID,
		status:         snap.Status,
		autoPaused:     snap.AutoPaused,
		pauseReason:    snap.PauseReason,
		floodWaitUntil: snap.FloodWaitUntil,
		lastError:      snap.LastError,
		lastActive:     snap.LastActive,
	}
	if s.status == "" {
		s.status = StatusActive
	}
	return s
}

// OwnerID returns the operator-assigned session identifier.
func (s *State) OwnerID() string {
	return s.ownerID
}

// Status returns the current availability status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsActive reports whether the session is currently forwarding.
func (s *State) IsActive() bool {
	return s.Status() == StatusActive
}

// PauseManually suspends forwarding at an operator's request. The reason is
// kept for status reporting. No-op when the session is in the error state.
func (s *State) PauseManually(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusError {
		return
	}

	s.status = StatusPaused
	s.autoPaused = false
	s.pauseReason = reason
	s.floodWaitUntil = time.Time{}
}

// PauseForFloodWait suspends forwarding after a platform rate limit and
// returns the deadline before which the session must not resume. No-op when
// the session is in the error state, in which case the zero time is returned.
func (s *State) PauseForFloodWait(wait time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusError {
		return time.Time{}
	}
	if wait < 0 {
		wait = 0
	}

	until := time.Now().UTC().Add(wait)
	s.status = StatusPaused
	s.autoPaused = true
	s.pauseReason = "flood wait"
	s.floodWaitUntil = until
	return until
}

// MarkError puts the session into the terminal error state. TryResume will
// refuse until an operator rebuilds the session.
func (s *State) MarkError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusError
	s.autoPaused = false
	s.pauseReason = ""
	s.floodWaitUntil = time.Time{}
	s.lastError = msg
}

// TryResume attempts to return the session to active. It succeeds only when
// the session is paused and any flood wait deadline has passed. When refused
// because of a pending deadline, the remaining wait is returned.
func (s *State) TryResume() (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPaused {
		return false, 0
	}

	if !s.floodWaitUntil.IsZero() {
		if remaining := time.Until(s.floodWaitUntil); remaining > 0 {
			return false, remaining
		}
	}

	s.status = StatusActive
	s.autoPaused = false
	s.pauseReason = ""
	s.floodWaitUntil = time.Time{}
	s.lastActive = time.Now().UTC()
	return true, 0
}

// RecordActivity notes a successful delivery for status reporting.
func (s *State) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now().UTC()
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		OwnerID:        s.ownerID,
		Status:         s.status,
		AutoPaused:     s.autoPaused,
		PauseReason:    s.pauseReason,
		FloodWaitUntil: s.floodWaitUntil,
		LastError:      s.lastError,
		LastActive:     s.lastActive,
	}
}
