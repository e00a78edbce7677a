package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"classbridge/internal/app"
	"classbridge/internal/config"
	"classbridge/pkg/types"
)

const waitTimeout = 3 * time.Second

// testEnv is a running application on a loopback port backed by a temp database.
type testEnv struct {
	t    *testing.T
	addr string
}

func startEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "classbridge.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	// Keep the periodic system_health broadcast out of the way.
	cfg.Hub.HealthInterval = time.Hour
	// The history reply doubles as the join acknowledgement for client.join.
	cfg.Hub.HistoryLimit = 50
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Logf("Serve returned: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("application did not shut down")
		}
	})

	env := &testEnv{t: t, addr: ln.Addr().String()}
	require.Eventually(t, func() bool {
		resp, err := http.Get(env.url("/health"))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, waitTimeout, 20*time.Millisecond)
	return env
}

func (e *testEnv) url(path string) string {
	return "http://" + e.addr + path
}

func (e *testEnv) post(path, body string, header ...string) *http.Response {
	e.t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.url(path), strings.NewReader(body))
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) getJSON(path string, dst interface{}) {
	e.t.Helper()
	resp, err := http.Get(e.url(path))
	require.NoError(e.t, err)
	defer resp.Body.Close()
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(dst))
}

// onlineCount reads the presence endpoint without failing the test, so it is
// safe inside polling conditions. Errors report -1.
func (e *testEnv) onlineCount() int {
	resp, err := http.Get(e.url("/api/presence"))
	if err != nil {
		return -1
	}
	defer resp.Body.Close()
	var snapshot struct {
		OnlineCount int `json:"onlineCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return -1
	}
	return snapshot.OnlineCount
}

// registerUser records a directory entry through the REST new-user flow.
func (e *testEnv) registerUser(id, name, role string) {
	e.t.Helper()
	resp := e.post("/api/events/users", `{"userId":"`+id+`","name":"`+name+`","role":"`+role+`"}`)
	require.Equal(e.t, http.StatusAccepted, resp.StatusCode)
}

// client is a real websocket peer reading frames in the background.
type client struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan types.Envelope
	hello  types.Connected
}

func (e *testEnv) dial(query url.Values) (*client, *http.Response, error) {
	target := "ws://" + e.addr + "/ws"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return nil, resp, err
	}

	c := &client{t: e.t, conn: conn, frames: make(chan types.Envelope, 256)}
	go c.readLoop()
	e.t.Cleanup(c.close)

	require.NoError(e.t, json.Unmarshal(c.expect(types.EventConnected), &c.hello))
	return c, resp, nil
}

// connect dials as userID with role, using the development handshake.
func (e *testEnv) connect(userID, role string) *client {
	e.t.Helper()
	query := url.Values{}
	if userID != "" {
		query.Set("user_id", userID)
	}
	if role != "" {
		query.Set("role", role)
	}
	c, _, err := e.dial(query)
	require.NoError(e.t, err)
	return c
}

func (c *client) readLoop() {
	defer close(c.frames)
	for {
		var env types.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		c.frames <- env
	}
}

func (c *client) close() {
	_ = c.conn.Close()
}

func (c *client) send(event string, data interface{}) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(types.Envelope{Event: event, Data: raw}))
}

func (c *client) sendRaw(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// expect returns the data of the next frame named event, skipping others.
func (c *client) expect(event string) json.RawMessage {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case env, ok := <-c.frames:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", event)
			}
			if env.Event == event {
				return env.Data
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", event)
		}
	}
}

// next returns the next frame of any kind.
func (c *client) next() types.Envelope {
	c.t.Helper()
	select {
	case env, ok := <-c.frames:
		if !ok {
			c.t.Fatalf("connection closed while waiting for a frame")
		}
		return env
	case <-time.After(waitTimeout):
		c.t.Fatalf("timed out waiting for a frame")
	}
	return types.Envelope{}
}

func (c *client) expectInto(event string, dst interface{}) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(c.expect(event), dst))
}

// expectNone fails if a frame named event arrives within wait.
func (c *client) expectNone(event string, wait time.Duration) {
	c.t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case env, ok := <-c.frames:
			if !ok {
				return
			}
			if env.Event == event {
				c.t.Fatalf("unexpected %s frame: %s", event, env.Data)
			}
		case <-deadline:
			return
		}
	}
}

// join subscribes to a conversation and returns the replayed history.
func (c *client) join(conversationID string) types.ConversationHistory {
	c.t.Helper()
	c.send(types.EventJoinConversation, map[string]string{"conversationId": conversationID})
	var history types.ConversationHistory
	c.expectInto(types.EventConversationHistory, &history)
	return history
}
