// Package session holds the gateway's synthesis-session domain model and
// its in-memory store.
package session

import (
	"sync"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
)

// Status tracks where a session is in its lifecycle. Transitions are
// monotonic: Pending -> Streaming -> Completed or Failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is one client-visible synthesis request from creation through
// end-of-stream or failure. Status is the only mutable field.
type Session struct {
	ID           string
	Provider     string
	Voice        string
	Text         string
	Language     string
	TargetFormat audio.Format
	SampleRate   int
	CreatedAt    time.Time
	Status       Status
}

// Store is a thread-safe in-memory session map. Sessions are retained for
// the process lifetime; there is no deletion.
type Store struct {
	mu    sync.RWMutex
	items map[string]*Session
}

func NewStore() *Store {
	return &Store{items: make(map[string]*Session)}
}

// Get returns a copy of the session, or false when unknown.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.items[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Save stores the session keyed by id.
func (s *Store) Save(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := sess
	s.items[sess.ID] = &copied
}

// UpdateStatus sets the session's status. Terminal statuses are sticky and
// a session never returns to pending.
func (s *Store) UpdateStatus(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if !ok {
		return
	}
	if sess.Status.Terminal() || status == StatusPending {
		return
	}
	sess.Status = status
}

// Len reports how many sessions are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
