package workflow

import (
	"sort"
	"sync"

	"invoicedesk/internal/domain"
)

// Registry holds the live drafting sessions by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) New() *Session {
	s := NewSession()
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.NewNotFoundError("session", id)
	}
	return s, nil
}

// Delete drops the session. A session with a running submission is kept.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.NewNotFoundError("session", id)
	}
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	if busy {
		return ErrSessionBusy
	}
	delete(r.sessions, id)
	return nil
}

// IDs sorted ids of live sessions.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
