package search

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps live sessions by id and forgets the ones left idle past ttl.
type Store struct {
	backend Backend
	chunk   int
	ttl     time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(b Backend, chunk int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{backend: b, chunk: chunk, ttl: ttl, sessions: map[string]*Session{}}
}

func (st *Store) Create() (string, *Session) {
	id := uuid.NewString()
	s := NewSession(st.backend, st.chunk)
	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()
	return id, s
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *Store) Remove(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle since before now-ttl and returns how many went.
func (st *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-st.ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.lastTouched().Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (st *Store) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			st.Sweep(now)
		}
	}
}
