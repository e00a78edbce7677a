package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classbridge/internal/admin"
	"classbridge/internal/auth"
	"classbridge/internal/database"
	"classbridge/internal/presence"
	"classbridge/internal/router"
	"classbridge/internal/websocket"
	"classbridge/pkg/types"
)

type frame struct {
	Event   string
	Payload interface{}
}

type testSink struct {
	id     string
	mu     sync.Mutex
	frames []frame
}

func (s *testSink) SessionID() string { return s.id }

func (s *testSink) Emit(event string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame{Event: event, Payload: payload})
	return nil
}

func (s *testSink) Close() error { return nil }

func (s *testSink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Event
	}
	return out
}

type fakeHistory struct {
	messages []*types.Message
	err      error
	limit    int
}

func (h *fakeHistory) History(ctx context.Context, conversationID types.ID, limit int) ([]*types.Message, error) {
	h.limit = limit
	return h.messages, h.err
}

type fakeHealth struct{ status string }

func (h fakeHealth) ReportHealth(ctx context.Context) types.SystemHealth {
	return types.SystemHealth{Status: h.status}
}

type person struct {
	Dir  database.Directory
	ID   types.ID
	Name string
}

type fakePeople struct {
	recorded []person
	err      error
}

func (p *fakePeople) UpsertPerson(ctx context.Context, dir database.Directory, id types.ID, name, email, role string) error {
	if p.err != nil {
		return p.err
	}
	p.recorded = append(p.recorded, person{Dir: dir, ID: id, Name: name})
	return nil
}

type fixture struct {
	router  *router.Router
	history *fakeHistory
	people  *fakePeople
	server  *Server
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	r := router.NewRouter()
	registry := websocket.NewRegistry()
	f := &fixture{router: r, history: &fakeHistory{}, people: &fakePeople{}}

	deps := Deps{
		Emitter:      admin.NewEmitter(r, registry),
		Tracker:      presence.NewTracker(registry, r),
		History:      f.history,
		Health:       fakeHealth{status: types.HealthHealthy},
		People:       f.people,
		HistoryLimit: 50,
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.server = NewServer(deps)
	return f
}

func (f *fixture) admin(t *testing.T, id string) *testSink {
	t.Helper()
	sink := &testSink{id: id}
	f.router.Attach(sink)
	require.NoError(t, f.router.Join(id, types.RoleRoom(types.RoleAdmin)))
	return sink
}

func (f *fixture) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.admin(t, "s1")

	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	decode(t, rec, &body)
	assert.Equal(t, types.HealthHealthy, body.Status)
	assert.Equal(t, 1, body.Connections.ActiveSessions)
	assert.Equal(t, 1, body.Connections.Roles[types.RoleAdmin])
}

func TestHealth_UnhealthyIs503(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Health = fakeHealth{status: types.HealthUnhealthy} })

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f = newFixture(t, func(d *Deps) { d.Health = fakeHealth{status: types.HealthDegraded} })
	rec = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPresence(t *testing.T) {
	f := newFixture(t, nil)
	f.admin(t, "s1")
	f.admin(t, "s2")

	rec := f.do(http.MethodGet, "/api/presence", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body PresenceResponse
	decode(t, rec, &body)
	assert.Equal(t, 2, body.ConnectedAdmins)
	assert.Equal(t, 2, body.ActiveSessions)
}

func TestEmitEvents_DeliveredToAdmins(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		body  string
		event string
	}{
		{"submission", "/api/events/submissions",
			`{"submissionId":1,"studentName":"Tim","homeworkTitle":"Maps","className":"4B","filesCount":2}`,
			types.EventNewSubmission},
		{"attendance", "/api/events/attendance",
			`{"className":"4B","presentCount":20,"totalCount":24,"teacherName":"Bob"}`,
			types.EventAttendanceUpdate},
		{"homework", "/api/events/homework",
			`{"homeworkId":"hw-9","title":"Fractions","className":"4B","teacherName":"Bob"}`,
			types.EventHomeworkCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			sink := f.admin(t, "s1")

			rec := f.do(http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

			var body DeliveryResponse
			decode(t, rec, &body)
			assert.Equal(t, 1, body.Delivered)
			assert.Equal(t, []string{tt.event, types.EventNotification}, sink.events())
		})
	}
}

func TestEmitEvents_MissingFieldsAre400(t *testing.T) {
	f := newFixture(t, nil)
	sink := f.admin(t, "s1")

	for _, path := range []string{
		"/api/events/submissions",
		"/api/events/users",
		"/api/events/attendance",
		"/api/events/homework",
	} {
		rec := f.do(http.MethodPost, path, `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)

		var body ErrorResponse
		decode(t, rec, &body)
		assert.Equal(t, http.StatusBadRequest, body.Code)
		assert.NotEmpty(t, body.Message)
	}

	rec := f.do(http.MethodPost, "/api/events/attendance", `{"className":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.events())
}

func TestEmitNewUser_RecordsDirectory(t *testing.T) {
	f := newFixture(t, nil)
	sink := f.admin(t, "s1")

	rec := f.do(http.MethodPost, "/api/events/users", `{"userId":12,"name":"Bob","email":"bob@school.test","role":"teacher"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = f.do(http.MethodPost, "/api/events/users", `{"userId":13,"name":"Ann","role":"parent"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []person{
		{Dir: database.DirectoryStaff, ID: "12", Name: "Bob"},
		{Dir: database.DirectoryUsers, ID: "13", Name: "Ann"},
	}, f.people.recorded)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.frames, 4)
	note := sink.frames[1].Payload.(types.Notification)
	assert.True(t, note.Urgent)
	note = sink.frames[3].Payload.(types.Notification)
	assert.False(t, note.Urgent)
}

func TestEmitNewUser_DirectoryFailure(t *testing.T) {
	f := newFixture(t, nil)
	sink := f.admin(t, "s1")
	f.people.err = errors.New("disk full")

	rec := f.do(http.MethodPost, "/api/events/users", `{"userId":12,"name":"Bob","role":"teacher"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, sink.events())
}

func TestNotify(t *testing.T) {
	f := newFixture(t, nil)

	parent := &testSink{id: "p1"}
	f.router.Attach(parent)
	require.NoError(t, f.router.Join("p1", types.UserRoom("42")))
	require.NoError(t, f.router.Join("p1", types.RoleRoom(types.RoleParent)))

	rec := f.do(http.MethodPost, "/api/notify/users/42", `{"event":"grade_posted","payload":{"grade":"A"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var body DeliveryResponse
	decode(t, rec, &body)
	assert.Equal(t, 1, body.Delivered)

	rec = f.do(http.MethodPost, "/api/notify/roles/parent", `{"event":"school_closed"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodPost, "/api/notify/roles/teacher", `{"event":"school_closed"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, 0, body.Delivered)

	assert.Equal(t, []string{"grade_posted", "school_closed"}, parent.events())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/notify/users/42", `{"payload":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/notify/roles/Not%20A%20Role", `{"event":"x"}`).Code)
}

func TestListMessages(t *testing.T) {
	f := newFixture(t, nil)
	f.history.messages = []*types.Message{
		{ID: 1, ConversationID: "42", SenderID: "7", Text: "hi", SenderName: "Alice", CreatedAt: time.Now().UTC()},
	}

	rec := f.do(http.MethodGet, "/api/conversations/42/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, f.history.limit)

	var body struct {
		ConversationID types.ID `json:"conversationId"`
		Messages       []struct {
			ID         int64  `json:"id"`
			SenderName string `json:"senderName"`
		} `json:"messages"`
	}
	decode(t, rec, &body)
	assert.Equal(t, types.ID("42"), body.ConversationID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "Alice", body.Messages[0].SenderName)

	f.do(http.MethodGet, "/api/conversations/42/messages?limit=5", "")
	assert.Equal(t, 5, f.history.limit)
	f.do(http.MethodGet, "/api/conversations/42/messages?limit=500", "")
	assert.Equal(t, 50, f.history.limit)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/conversations/42/messages?limit=-1", "").Code)
}

func TestListMessages_EmptyAndFailure(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/conversations/9/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[]`)

	f.history.err = &types.PersistenceError{Op: "load history", Err: errors.New("locked")}
	rec = f.do(http.MethodGet, "/api/conversations/9/messages", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGuard_RequiresAdminToken(t *testing.T) {
	authenticator := auth.NewAuthenticator(auth.Config{Secret: "s3cret"})
	f := newFixture(t, func(d *Deps) { d.Guard = authenticator.RequireRole })

	adminToken, err := authenticator.IssueToken(types.Identity{UserID: "1", Role: types.RoleAdmin}, time.Minute)
	require.NoError(t, err)
	parentToken, err := authenticator.IssueToken(types.Identity{UserID: "2", Role: types.RoleParent}, time.Minute)
	require.NoError(t, err)

	body := `{"event":"ping"}`
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/notify/roles/parent", body).Code)
	assert.Equal(t, http.StatusUnauthorized,
		f.do(http.MethodPost, "/api/notify/roles/parent", body, "Authorization", "Bearer garbage").Code)
	assert.Equal(t, http.StatusForbidden,
		f.do(http.MethodPost, "/api/notify/roles/parent", body, "Authorization", "Bearer "+parentToken).Code)
	assert.Equal(t, http.StatusAccepted,
		f.do(http.MethodPost, "/api/notify/roles/parent", body, "Authorization", "Bearer "+adminToken).Code)

	// Parents may read conversation history but not presence.
	assert.Equal(t, http.StatusOK,
		f.do(http.MethodGet, "/api/conversations/1/messages", "", "Authorization", "Bearer "+parentToken).Code)
	assert.Equal(t, http.StatusForbidden,
		f.do(http.MethodGet, "/api/presence", "", "Authorization", "Bearer "+parentToken).Code)

	// Health stays public.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, http.StatusNotFound, body.Code)
}
