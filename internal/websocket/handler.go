package websocket

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"classbridge/pkg/interfaces"
	"classbridge/pkg/types"
)

// Lifecycle receives the connect, frame and disconnect signals of every session.
type Lifecycle interface {
	Connect(sink interfaces.Sink, identity types.Identity)
	HandleFrame(sessionID string, frame []byte)
	Disconnect(sessionID string)
}

// Handler upgrades authenticated requests and pumps frames into the lifecycle.
// ARCHITECTURAL DISCOVERY: the handler owns only transport concerns; identity
// comes from the Authenticator and every event decision from the Lifecycle
type Handler struct {
	auth      interfaces.Authenticator
	lifecycle Lifecycle
	opts      Options
	upgrader  websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(auth interfaces.Authenticator, lifecycle Lifecycle, opts Options) *Handler {
	return &Handler{
		auth:      auth,
		lifecycle: lifecycle,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				// FUNCTIONAL DISCOVERY: browsers connect from the web app origin
				// and the handshake identity is verified separately
				return true
			},
		},
	}
}

// HandleWebSocket authenticates the handshake, upgrades and serves the
// session until it disconnects.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	identity, err := h.auth.Authenticate(c.Request())
	if err != nil {
		if errors.Is(err, interfaces.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		log.Printf("WebSocket upgrade failed: %v", err)
		return nil
	}

	conn := NewConnection(ws, h.opts)
	h.serve(conn, identity)
	return nil
}

func (h *Handler) serve(conn *Connection, identity types.Identity) {
	sessionID := conn.SessionID()
	log.Printf("Session %s connected (user=%q role=%q)", sessionID, identity.UserID, identity.Role)

	h.lifecycle.Connect(conn, identity)
	defer func() {
		h.lifecycle.Disconnect(sessionID)
		_ = conn.Close()
		log.Printf("Session %s disconnected", sessionID)
	}()

	conn.readPump(func(frame []byte) {
		h.lifecycle.HandleFrame(sessionID, frame)
	})
}
