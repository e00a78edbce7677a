package router

import (
	"log"
	"sort"
	"sync"

	"classbridge/pkg/interfaces"
)

// Router is the room-based publish/subscribe layer.
// ARCHITECTURAL DISCOVERY: one coarse RWMutex guards sinks, rooms and the
// per-session membership index together. Publish copies the member list under
// the read lock and emits after releasing it, so a slow client never stalls
// joins, leaves or other publishes.
type Router struct {
	mu          sync.RWMutex
	sinks       map[string]interfaces.Sink
	rooms       map[string]map[string]struct{} // room -> session ids
	memberships map[string]map[string]struct{} // session id -> rooms
}

var _ interfaces.Publisher = (*Router)(nil)

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{
		sinks:       make(map[string]interfaces.Sink),
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Attach makes a session deliverable. Attaching the same session id twice
// replaces its sink and keeps its memberships.
func (r *Router) Attach(sink interfaces.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := sink.SessionID()
	r.sinks[id] = sink
	if _, ok := r.memberships[id]; !ok {
		r.memberships[id] = make(map[string]struct{})
	}
}

// Detach removes a session and leaves every room it joined, returning those rooms.
// FUNCTIONAL DISCOVERY: membership is tracked per session so teardown is the
// exact mirror of every Join made during the session's life
func (r *Router) Detach(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.memberships[sessionID]
	left := make([]string, 0, len(joined))
	for room := range joined {
		r.removeMemberLocked(room, sessionID)
		left = append(left, room)
	}

	delete(r.memberships, sessionID)
	delete(r.sinks, sessionID)

	sort.Strings(left)
	return left
}

// Join adds the session to room, creating the room on first join. Joining
// twice has no further effect.
func (r *Router) Join(sessionID, room string) error {
	if room == "" {
		return ErrInvalidRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.memberships[sessionID]
	if !ok {
		return ErrUnknownSession
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[sessionID] = struct{}{}
	joined[room] = struct{}{}
	return nil
}

// Leave removes the session from room and reclaims the room once empty.
// Unknown rooms and sessions are a no-op.
func (r *Router) Leave(sessionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if joined, ok := r.memberships[sessionID]; ok {
		delete(joined, room)
	}
	r.removeMemberLocked(room, sessionID)
}

func (r *Router) removeMemberLocked(room, sessionID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Publish delivers the event to every current member of room and returns how
// many sinks accepted it. An empty or unknown room is a silent no-op.
func (r *Router) Publish(room, event string, payload interface{}) int {
	return r.PublishExcept(room, "", event, payload)
}

// PublishExcept is Publish with one session excluded.
func (r *Router) PublishExcept(room, exceptSessionID, event string, payload interface{}) int {
	targets := r.snapshot(room, exceptSessionID)

	delivered := 0
	for _, sink := range targets {
		if err := sink.Emit(event, payload); err != nil {
			// Best effort: a closing or saturated session just misses this frame
			log.Printf("Dropped %s for session %s in %s: %v", event, sink.SessionID(), room, err)
			continue
		}
		delivered++
	}
	return delivered
}

// PublishToSession delivers the event to a single session. Returns false when
// the session is unknown or dropped the frame.
func (r *Router) PublishToSession(sessionID, event string, payload interface{}) bool {
	r.mu.RLock()
	sink, ok := r.sinks[sessionID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if err := sink.Emit(event, payload); err != nil {
		log.Printf("Dropped %s for session %s: %v", event, sessionID, err)
		return false
	}
	return true
}

func (r *Router) snapshot(room, exceptSessionID string) []interfaces.Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	targets := make([]interfaces.Sink, 0, len(members))
	for id := range members {
		if id == exceptSessionID {
			continue
		}
		if sink, ok := r.sinks[id]; ok {
			targets = append(targets, sink)
		}
	}
	return targets
}

// RoomSize returns the number of sessions in room
func (r *Router) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns the rooms a session has joined, sorted.
func (r *Router) Rooms(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.memberships[sessionID]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// IsMember reports whether the session is in room.
func (r *Router) IsMember(sessionID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][sessionID]
	return ok
}

// SessionCount returns the number of attached sessions
func (r *Router) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// RoomCount returns the number of live (non-empty) rooms
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// CloseAll closes every attached sink, returning how many were closed. Sinks
// stay attached until their own teardown detaches them.
func (r *Router) CloseAll() int {
	r.mu.RLock()
	sinks := make([]interfaces.Sink, 0, len(r.sinks))
	for _, sink := range r.sinks {
		sinks = append(sinks, sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			log.Printf("Failed to close session %s: %v", sink.SessionID(), err)
		}
	}
	return len(sinks)
}
