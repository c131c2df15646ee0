package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/city-weather/internal/weather"
)

var (
	// ErrNotFound is returned when no session exists for a given id.
	ErrNotFound = errors.New("session not found")
	// ErrFull is returned when the store already holds the maximum number of sessions.
	ErrFull = errors.New("too many sessions")
)

// Factory builds a new session for the given id.
type Factory func(id string) *weather.Session

// MemoryStore is a concurrency-safe in-memory registry of weather sessions.
type MemoryStore struct {
	mu sync.RWMutex

	// key: session id
	data map[string]*weather.Session

	factory     Factory
	maxSessions int // 0 = unlimited
	now         func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
// If maxSessions is <= 0, it is treated as unlimited.
func NewMemoryStore(factory Factory, maxSessions int) *MemoryStore {
	return &MemoryStore{
		data:        make(map[string]*weather.Session),
		factory:     factory,
		maxSessions: maxSessions,
		now:         time.Now,
	}
}

// Create registers a new session under a random id.
func (s *MemoryStore) Create() (*weather.Session, error) {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.data) >= s.maxSessions {
		return nil, ErrFull
	}
	sess := s.factory(id)
	s.data[id] = sess
	return sess, nil
}

// Get returns the session and marks it as used.
func (s *MemoryStore) Get(id string) (*weather.Session, error) {
	s.mu.RLock()
	sess, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	sess.Touch(s.now())
	return sess, nil
}

// Delete closes and removes the session.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.data[id]
	delete(s.data, id)
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	sess.Close()
	return nil
}

// Sweep closes and removes sessions idle for longer than maxIdle and returns their count.
func (s *MemoryStore) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	var expired []*weather.Session
	s.mu.Lock()
	for id, sess := range s.data {
		if sess.LastSeen().Before(cutoff) {
			expired = append(expired, sess)
			delete(s.data, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	return len(expired)
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// CloseAll closes and removes every session.
func (s *MemoryStore) CloseAll() {
	s.mu.Lock()
	all := s.data
	s.data = make(map[string]*weather.Session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.Close()
	}
}
