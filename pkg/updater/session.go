package updater

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/refit/pkg/types"
)

// MaxLogEntries caps the session log; older entries are dropped first
const MaxLogEntries = 200

// Session is the process-wide update state. All mutation goes through its
// methods; readers get deep copies from Snapshot.
type Session struct {
	mu      sync.RWMutex
	status  types.SessionStatus
	now     func() time.Time
	onPhase func(runID string, phase types.Phase)
}

// NewSession creates an idle session
func NewSession(current string) *Session {
	return &Session{
		status: types.SessionStatus{
			Phase:          types.PhaseIdle,
			CurrentVersion: current,
			Log:            []types.LogEntry{},
		},
		now: time.Now,
	}
}

// Snapshot returns a deep copy of the session state
func (s *Session) Snapshot() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyStatus(s.status)
}

// Phase returns the current phase
func (s *Session) Phase() types.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Phase
}

// restore replaces the whole state; used to undo a no-op check
func (s *Session) restore(status types.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = copyStatus(status)
}

// begin resets the session for a new run
func (s *Session) begin(runID string, phase types.Phase, current, target string, profile *types.DeploymentProfile) {
	s.mu.Lock()
	now := s.now().UTC()
	s.status = types.SessionStatus{
		RunID:          runID,
		Phase:          phase,
		CurrentVersion: current,
		TargetVersion:  target,
		Log:            []types.LogEntry{},
		StartedAt:      &now,
		Profile:        profile,
	}
	s.mu.Unlock()

	s.notify(runID, phase)
}

// setPhase transitions to phase and logs message
func (s *Session) setPhase(phase types.Phase, format string, args ...interface{}) {
	s.mu.Lock()
	s.status.Phase = phase
	s.appendLocked(fmt.Sprintf(format, args...))
	runID := s.status.RunID
	if phase.IsTerminal() {
		now := s.now().UTC()
		s.status.FinishedAt = &now
	}
	s.mu.Unlock()

	s.notify(runID, phase)
}

// logf appends a message under the current phase
func (s *Session) logf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(fmt.Sprintf(format, args...))
}

func (s *Session) appendLocked(msg string) {
	s.status.Log = append(s.status.Log, types.LogEntry{
		Time:    s.now().UTC(),
		Phase:   s.status.Phase,
		Message: msg,
	})
	if over := len(s.status.Log) - MaxLogEntries; over > 0 {
		s.status.Log = append([]types.LogEntry(nil), s.status.Log[over:]...)
	}
}

func (s *Session) update(fn func(st *types.SessionStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *Session) notify(runID string, phase types.Phase) {
	if s.onPhase != nil {
		s.onPhase(runID, phase)
	}
}

func copyStatus(st types.SessionStatus) types.SessionStatus {
	out := st
	out.Log = append([]types.LogEntry{}, st.Log...)
	if st.Backup != nil {
		b := *st.Backup
		out.Backup = &b
	}
	if st.LastError != nil {
		e := *st.LastError
		out.LastError = &e
	}
	if st.StartedAt != nil {
		t := *st.StartedAt
		out.StartedAt = &t
	}
	if st.FinishedAt != nil {
		t := *st.FinishedAt
		out.FinishedAt = &t
	}
	if st.LastCheck != nil {
		c := *st.LastCheck
		out.LastCheck = &c
	}
	if st.Profile != nil {
		p := *st.Profile
		out.Profile = &p
	}
	return out
}
