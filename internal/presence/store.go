package presence

import (
	"sync"
	"time"
)

// SubjectID identifies a tracked user.
type SubjectID uint64

// Session is one activity currently being timed for a subject.
type Session struct {
	Label     string    `json:"label"`
	StartedAt time.Time `json:"started_at"`
}

// SessionStore holds the open sessions of every subject. A subject is present
// only while it has at least one open session.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[SubjectID][]Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[SubjectID][]Session)}
}

// Open starts timing label for subject. It returns false, keeping the original
// start time, when the session is already open.
func (s *SessionStore) Open(subject SubjectID, label string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(subject, label, at)
}

func (s *SessionStore) open(subject SubjectID, label string, at time.Time) bool {
	for _, sess := range s.sessions[subject] {
		if sess.Label == label {
			return false
		}
	}
	s.sessions[subject] = append(s.sessions[subject], Session{Label: label, StartedAt: at})
	return true
}

// Close stops timing label for subject and returns when it started.
// The boolean is false when no such session was open.
func (s *SessionStore) Close(subject SubjectID, label string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := s.closeLabels(subject, map[string]struct{}{label: {}})
	if len(closed) == 0 {
		return time.Time{}, false
	}
	return closed[0].StartedAt, true
}

// CloseAll removes every open session for subject, in open order.
func (s *SessionStore) CloseAll(subject SubjectID) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := s.sessions[subject]
	delete(s.sessions, subject)
	return closed
}

// Apply closes the sessions named in remove and then opens those named in add,
// as a single step. Labels in remove without an open session are skipped, as
// are labels in add that are already open.
func (s *SessionStore) Apply(subject SubjectID, remove, add []string, at time.Time) (closed, opened []Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(remove) > 0 {
		set := make(map[string]struct{}, len(remove))
		for _, label := range remove {
			set[label] = struct{}{}
		}
		closed = s.closeLabels(subject, set)
	}

	for _, label := range add {
		if s.open(subject, label, at) {
			opened = append(opened, Session{Label: label, StartedAt: at})
		}
	}

	return closed, opened
}

// closeLabels rebuilds the subject's slice without the given labels and
// returns the removed sessions in open order.
func (s *SessionStore) closeLabels(subject SubjectID, labels map[string]struct{}) []Session {
	current, ok := s.sessions[subject]
	if !ok {
		return nil
	}

	var closed []Session
	kept := make([]Session, 0, len(current))
	for _, sess := range current {
		if _, drop := labels[sess.Label]; drop {
			closed = append(closed, sess)
			continue
		}
		kept = append(kept, sess)
	}

	if len(kept) == 0 {
		delete(s.sessions, subject)
	} else {
		s.sessions[subject] = kept
	}
	return closed
}

// Sessions returns a copy of subject's open sessions.
func (s *SessionStore) Sessions(subject SubjectID) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.sessions[subject]
	if len(current) == 0 {
		return nil
	}
	out := make([]Session, len(current))
	copy(out, current)
	return out
}

// Snapshot returns a copy of every subject's open sessions.
func (s *SessionStore) Snapshot() map[SubjectID][]Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[SubjectID][]Session, len(s.sessions))
	for subject, current := range s.sessions {
		cp := make([]Session, len(current))
		copy(cp, current)
		out[subject] = cp
	}
	return out
}

// Subjects returns how many subjects have at least one open session.
func (s *SessionStore) Subjects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Len returns the total number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, current := range s.sessions {
		n += len(current)
	}
	return n
}
