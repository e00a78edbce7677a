package presence

import (
	"classbridge/pkg/types"
)

// UserIndex is the registry view presence is derived from.
type UserIndex interface {
	IsOnline(userID types.ID) bool
	OnlineCount() int
	OnlineUsers() []types.ID
}

// RoomIndex is the router view presence is derived from.
type RoomIndex interface {
	RoomSize(room string) int
	SessionCount() int
	RoomCount() int
}

// Tracker answers presence questions from registry and router state. It
// owns no state of its own, so every answer reflects the live collections.
type Tracker struct {
	users UserIndex
	rooms RoomIndex
	roles []string
}

// Snapshot is a point-in-time presence summary.
type Snapshot struct {
	OnlineUsers    []types.ID     `json:"onlineUsers"`
	OnlineCount    int            `json:"onlineCount"`
	ActiveSessions int            `json:"activeSessions"`
	Rooms          int            `json:"rooms"`
	Roles          map[string]int `json:"roles"`
}

// NewTracker creates a tracker reporting the given roles in snapshots.
func NewTracker(users UserIndex, rooms RoomIndex, roles ...string) *Tracker {
	if len(roles) == 0 {
		roles = []string{types.RoleAdmin, types.RoleTeacher, types.RoleParent, types.RoleStudent}
	}
	return &Tracker{users: users, rooms: rooms, roles: roles}
}

// OnlineCount returns the number of users with a registered session
func (t *Tracker) OnlineCount() int {
	return t.users.OnlineCount()
}

// IsOnline reports whether userID currently has a session
func (t *Tracker) IsOnline(userID types.ID) bool {
	return t.users.IsOnline(userID)
}

// RoleCount returns the number of sessions in the role's room.
func (t *Tracker) RoleCount(role string) int {
	return t.rooms.RoomSize(types.RoleRoom(role))
}

// ActiveSessions counts sessions including anonymous and replaced ones.
func (t *Tracker) ActiveSessions() int {
	return t.rooms.SessionCount()
}

// Snapshot collects every presence figure at once. The figures are read one
// after another and may be mutually inconsistent under concurrent churn.
func (t *Tracker) Snapshot() Snapshot {
	roles := make(map[string]int, len(t.roles))
	for _, role := range t.roles {
		roles[role] = t.RoleCount(role)
	}

	users := t.users.OnlineUsers()
	return Snapshot{
		OnlineUsers:    users,
		OnlineCount:    len(users),
		ActiveSessions: t.rooms.SessionCount(),
		Rooms:          t.rooms.RoomCount(),
		Roles:          roles,
	}
}
