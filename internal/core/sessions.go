package core

import (
	"sync"
	"time"
)

// AuthSession marks a protected app as currently trusted.
type AuthSession struct {
	BundleID      string
	EstablishedAt time.Time
	Method        UnlockMethod
}

// SessionStore is the per-app authentication memory. The coordinator is the
// only writer; detectors read through IsAuthenticated. With a zero grace
// period a session lasts until explicitly cleared (app quit, idle timeout,
// sleep, companion loss); with a positive grace period it expires on its
// own after that window.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]AuthSession
	grace    time.Duration
	now      func() time.Time
}

// NewSessionStore creates an empty store. grace == 0 selects the
// until-cleared model.
func NewSessionStore(grace time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]AuthSession),
		grace:    grace,
		now:      time.Now,
	}
}

// MarkAuthenticated inserts or overwrites the session for bundleID.
func (s *SessionStore) MarkAuthenticated(bundleID string, method UnlockMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[bundleID] = AuthSession{
		BundleID:      bundleID,
		EstablishedAt: s.now(),
		Method:        method,
	}
}

// IsAuthenticated reports whether bundleID holds a live session. Expired
// timed-grace sessions are dropped lazily here.
func (s *SessionStore) IsAuthenticated(bundleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[bundleID]
	if !ok {
		return false
	}
	if s.grace > 0 && s.now().Sub(sess.EstablishedAt) >= s.grace {
		delete(s.sessions, bundleID)
		return false
	}
	return true
}

// Clear removes the session for bundleID, if any.
func (s *SessionStore) Clear(bundleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, bundleID)
}

// ClearAll removes every session. Used on global re-lock triggers.
func (s *SessionStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]AuthSession)
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grace > 0 {
		now := s.now()
		for id, sess := range s.sessions {
			if now.Sub(sess.EstablishedAt) >= s.grace {
				delete(s.sessions, id)
			}
		}
	}
	return len(s.sessions)
}
