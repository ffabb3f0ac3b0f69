package lab

import (
	"sort"
	"sync"

	"github.com/letushack/labs-server/internal/domain"
)

// Registry is the in-memory authoritative view of active lab sessions,
// keyed by container ID. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]domain.Session)}
}

// Put inserts or replaces a session.
func (r *Registry) Put(s domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ContainerID] = s
}

// Delete removes a session by container ID.
func (r *Registry) Delete(containerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, containerID)
}

// Get returns the session for a container ID, if tracked.
func (r *Registry) Get(containerID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[containerID]
	return s, ok
}

// User returns the sessions owned by a user, oldest first.
func (r *Registry) User(userID string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out
}

// All returns every tracked session, oldest first.
func (r *Registry) All() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sortSessions(out)
	return out
}

// Ports returns the host ports currently held by tracked sessions.
func (r *Registry) Ports() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ports := make([]int, 0, len(r.sessions))
	for _, s := range r.sessions {
		ports = append(ports, s.Port)
	}
	return ports
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func sortSessions(sessions []domain.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ContainerID < sessions[j].ContainerID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
