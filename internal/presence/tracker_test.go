package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classbridge/internal/router"
	"classbridge/internal/websocket"
	"classbridge/pkg/types"
)

type nopSink struct{ id string }

func (s nopSink) SessionID() string              { return s.id }
func (s nopSink) Emit(string, interface{}) error { return nil }
func (s nopSink) Close() error                   { return nil }

func TestTracker_DerivesFromRegistryAndRouter(t *testing.T) {
	registry := websocket.NewRegistry()
	r := router.NewRouter()
	tracker := NewTracker(registry, r)

	assert.Equal(t, 0, tracker.OnlineCount())
	assert.Equal(t, 0, tracker.RoleCount(types.RoleAdmin))

	for userID, sessionID := range map[types.ID]string{"1": "s1", "2": "s2", "3": "s3"} {
		r.Attach(nopSink{id: sessionID})
		registry.Register(userID, sessionID)
	}
	require.NoError(t, r.Join("s1", types.RoleRoom(types.RoleAdmin)))
	require.NoError(t, r.Join("s2", types.RoleRoom(types.RoleAdmin)))
	require.NoError(t, r.Join("s3", types.RoleRoom(types.RoleTeacher)))
	r.Attach(nopSink{id: "anon"})

	assert.Equal(t, 3, tracker.OnlineCount())
	assert.True(t, tracker.IsOnline("2"))
	assert.False(t, tracker.IsOnline("9"))
	assert.Equal(t, 2, tracker.RoleCount(types.RoleAdmin))
	assert.Equal(t, 4, tracker.ActiveSessions())

	snap := tracker.Snapshot()
	assert.Equal(t, []types.ID{"1", "2", "3"}, snap.OnlineUsers)
	assert.Equal(t, 3, snap.OnlineCount)
	assert.Equal(t, 4, snap.ActiveSessions)
	assert.Equal(t, 2, snap.Rooms)
	assert.Equal(t, map[string]int{"admin": 2, "teacher": 1, "parent": 0, "student": 0}, snap.Roles)

	r.Leave("s1", types.RoleRoom(types.RoleAdmin))
	registry.Unregister("1")
	assert.Equal(t, 1, tracker.RoleCount(types.RoleAdmin))
	assert.Equal(t, 2, tracker.OnlineCount())
}

func TestTracker_CustomRoles(t *testing.T) {
	tracker := NewTracker(websocket.NewRegistry(), router.NewRouter(), "principal")
	assert.Equal(t, map[string]int{"principal": 0}, tracker.Snapshot().Roles)
}
