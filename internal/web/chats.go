package web

import (
	"sync"
	"time"

	"github.com/upbo/upbotrading/internal/ai"
)

const (
	maxChatSessions = 256
	chatIdleTTL     = time.Hour
)

type chatEntry struct {
	session  *ai.ChatSession
	lastUsed time.Time
}

// chatRegistry holds live chat sessions. Sessions idle longer than idle are
// dropped, and when the registry is full the least recently used one goes.
type chatRegistry struct {
	mu       sync.Mutex
	sessions map[string]*chatEntry
	max      int
	idle     time.Duration
	now      func() time.Time
}

func newChatRegistry(capacity int, idle time.Duration) *chatRegistry {
	return &chatRegistry{
		sessions: make(map[string]*chatEntry),
		max:      capacity,
		idle:     idle,
		now:      time.Now,
	}
}

func (r *chatRegistry) add(session *ai.ChatSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneLocked(now)
	for len(r.sessions) >= r.max {
		r.evictOldestLocked()
	}
	r.sessions[session.ID] = &chatEntry{session: session, lastUsed: now}
}

func (r *chatRegistry) get(id string) (*ai.ChatSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if now.Sub(e.lastUsed) > r.idle {
		delete(r.sessions, id)
		return nil, false
	}
	e.lastUsed = now
	return e.session, true
}

func (r *chatRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *chatRegistry) pruneLocked(now time.Time) {
	for id, e := range r.sessions {
		if now.Sub(e.lastUsed) > r.idle {
			delete(r.sessions, id)
		}
	}
}

func (r *chatRegistry) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range r.sessions {
		if oldestID == "" || e.lastUsed.Before(oldest) {
			oldestID, oldest = id, e.lastUsed
		}
	}
	delete(r.sessions, oldestID)
}
