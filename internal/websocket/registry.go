package websocket

import (
	"sort"
	"sync"

	"classbridge/pkg/types"
)

// Registry maps each online user to the session currently reachable for them.
// ARCHITECTURAL DISCOVERY: single session per user, last connected wins. The
// registry only holds session ids; the transport owns the connections.
type Registry struct {
	mu       sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	sessions map[types.ID]string
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[types.ID]string),
	}
}

// Register records that userID is reachable at sessionID and returns the
// session it replaced, if any. The replaced session is not closed; it stays
// subscribed to its rooms until it disconnects on its own.
func (r *Registry) Register(userID types.ID, sessionID string) (previous string, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced = r.sessions[userID]
	r.sessions[userID] = sessionID
	return previous, replaced && previous != sessionID
}

// Unregister removes the mapping for userID. Absent users are a no-op.
func (r *Registry) Unregister(userID types.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// UnregisterSession removes userID only while it still points at sessionID.
// RACE CONDITION FIX: a stale session tearing down after the user reconnected
// must not evict the newer session
func (r *Registry) UnregisterSession(userID types.ID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[userID]; ok && current == sessionID {
		delete(r.sessions, userID)
		return true
	}
	return false
}

// Lookup returns the session registered for userID
func (r *Registry) Lookup(userID types.ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.sessions[userID]
	return sessionID, ok
}

// IsOnline reports whether userID has a registered session
func (r *Registry) IsOnline(userID types.ID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// OnlineCount returns the number of registered users
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// OnlineUsers returns the registered user ids, sorted.
func (r *Registry) OnlineUsers() []types.ID {
	r.mu.RLock()
	users := make([]types.ID, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}
