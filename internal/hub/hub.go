package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"classbridge/internal/admin"
	"classbridge/internal/persistence"
	"classbridge/internal/router"
	"classbridge/internal/websocket"
	"classbridge/pkg/interfaces"
	"classbridge/pkg/types"
)

// Options tunes the hub's maintenance loop and chat handling.
type Options struct {
	HealthInterval  time.Duration // system_health cadence; zero disables it
	CleanupInterval time.Duration // rate limiter cleanup cadence
	HistoryLimit    int           // messages replayed on join_conversation; zero keeps join silent
	RateLimit       int           // chat and typing events per user per minute
	MemoryLimit     uint64        // heap bytes above which health reports degraded
}

// DefaultOptions returns the production hub settings
func DefaultOptions() Options {
	return Options{
		HealthInterval:  time.Minute,
		CleanupInterval: time.Minute,
		RateLimit:       router.DefaultRateLimit,
		MemoryLimit:     512 << 20,
	}
}

// HealthChecker reports whether the message store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Hub is the per-connection lifecycle handler. It registers identities, joins
// rooms on connect, dispatches inbound events, and releases every membership
// on disconnect.
// ARCHITECTURAL DISCOVERY: the hub never holds its own lock across router,
// registry or persistence calls; each collaborator guards its own state
type Hub struct {
	registry *websocket.Registry
	router   *router.Router
	store    *persistence.Store
	emitter  *admin.Emitter
	limiter  *router.RateLimiter
	health   HealthChecker
	opts     Options
	started  time.Time

	mu       sync.RWMutex
	sessions map[string]types.Identity
	running  bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ websocket.Lifecycle = (*Hub)(nil)

// NewHub wires the lifecycle handler to its collaborators
func NewHub(
	registry *websocket.Registry,
	r *router.Router,
	store *persistence.Store,
	emitter *admin.Emitter,
	health HealthChecker,
	opts Options,
) *Hub {
	return &Hub{
		registry: registry,
		router:   r,
		store:    store,
		emitter:  emitter,
		limiter:  router.NewRateLimiter(opts.RateLimit),
		health:   health,
		opts:     opts,
		started:  time.Now(),
		sessions: make(map[string]types.Identity),
		baseCtx:  context.Background(),
	}
}

// Connect attaches a new session, registers its user and joins its user and
// role rooms, then acknowledges with a connected frame.
func (h *Hub) Connect(sink interfaces.Sink, identity types.Identity) {
	sessionID := sink.SessionID()

	h.router.Attach(sink)
	h.mu.Lock()
	h.sessions[sessionID] = identity
	h.mu.Unlock()

	if !identity.IsAnonymous() {
		if previous, replaced := h.registry.Register(identity.UserID, sessionID); replaced {
			log.Printf("User %s reconnected: session %s replaces %s", identity.UserID, sessionID, previous)
		}
		h.join(sessionID, types.UserRoom(identity.UserID))
		if identity.Role != "" {
			h.join(sessionID, types.RoleRoom(identity.Role))
		}
	}

	_ = sink.Emit(types.EventConnected, types.Connected{
		SessionID: sessionID,
		UserID:    identity.UserID,
		Role:      identity.Role,
		Rooms:     h.router.Rooms(sessionID),
	})

	if !identity.IsAnonymous() {
		h.emitter.EmitPresenceChange(identity.UserID, identity.Role, types.PresenceOnline)
	}
}

func (h *Hub) join(sessionID, room string) {
	if err := h.router.Join(sessionID, room); err != nil {
		log.Printf("Session %s could not join %s: %v", sessionID, room, err)
	}
}

// Disconnect leaves every room the session joined and unregisters its user
// if the registry still points at this session. Repeated calls are a no-op.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	identity, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	if !ok {
		return
	}

	h.router.Detach(sessionID)

	if identity.IsAnonymous() {
		return
	}
	// RACE CONDITION FIX: a replaced session going away leaves the user online
	if h.registry.UnregisterSession(identity.UserID, sessionID) {
		h.emitter.EmitPresenceChange(identity.UserID, identity.Role, types.PresenceOffline)
	}
}

// Identity returns the identity a session connected with.
func (h *Hub) Identity(sessionID string) (types.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	identity, ok := h.sessions[sessionID]
	return identity, ok
}

// HandleFrame decodes one inbound frame and dispatches it. Failures are
// answered on the originating session only and never close the connection.
func (h *Hub) HandleFrame(sessionID string, frame []byte) {
	identity, ok := h.Identity(sessionID)
	if !ok {
		log.Printf("Frame for unknown session %s dropped", sessionID)
		return
	}

	event, err := types.DecodeInbound(frame)
	if err != nil {
		h.replyInvalid(sessionID, err)
		return
	}

	switch e := event.(type) {
	case types.SendMessage:
		h.handleSendMessage(sessionID, identity, e)
	case types.UserTyping:
		h.handleTyping(sessionID, identity, e)
	case types.JoinConversation:
		h.handleJoin(sessionID, e)
	case types.LeaveConversation:
		h.router.Leave(sessionID, types.ConversationRoom(e.ConversationID))
	}
}

func (h *Hub) replyInvalid(sessionID string, err error) {
	event := types.EventError
	var ve *types.ValidationError
	if errors.As(err, &ve) && ve.Event == types.EventSendMessage {
		event = types.EventMessageError
	}
	h.router.PublishToSession(sessionID, event, types.ErrorPayload{
		Error:   "Invalid event payload",
		Details: err.Error(),
	})
}

func (h *Hub) replyMessageError(sessionID, message string, err error) {
	h.router.PublishToSession(sessionID, types.EventMessageError, types.ErrorPayload{
		Error:   message,
		Details: err.Error(),
	})
}

// limitKey identifies the sender for rate limiting; anonymous sessions are
// limited individually.
func limitKey(sessionID string, identity types.Identity) string {
	if identity.IsAnonymous() {
		return "session:" + sessionID
	}
	return "user:" + identity.UserID.String()
}

// handleSendMessage persists the message and only then broadcasts it.
// FUNCTIONAL DISCOVERY: persistence runs with no router or registry lock held;
// a failed write is reported to the sender alone and nothing is broadcast
func (h *Hub) handleSendMessage(sessionID string, identity types.Identity, msg types.SendMessage) {
	if !identity.IsAnonymous() && msg.SenderID != identity.UserID {
		h.replyMessageError(sessionID, "Invalid sender", ErrSenderMismatch)
		return
	}
	if !h.limiter.Allow(limitKey(sessionID, identity)) {
		h.replyMessageError(sessionID, "Rate limit exceeded", router.ErrRateLimitExceeded)
		return
	}

	saved, err := h.store.SaveMessage(h.context(), msg.ConversationID, msg.SenderID, msg.Message)
	if err != nil {
		log.Printf("Message from %s in conversation %s not stored: %v", msg.SenderID, msg.ConversationID, err)
		h.replyMessageError(sessionID, "Failed to send message", err)
		return
	}

	h.router.Publish(types.ConversationRoom(saved.ConversationID), types.EventNewMessage, types.NewMessageFrom(saved))
}

// handleTyping relays the client's typing payload as sent, to everyone in the
// conversation but the sender. Over-limit typing frames are dropped silently.
func (h *Hub) handleTyping(sessionID string, identity types.Identity, typing types.UserTyping) {
	if !h.limiter.Allow(limitKey(sessionID, identity)) {
		return
	}
	h.router.PublishExcept(types.ConversationRoom(typing.ConversationID), sessionID, types.EventUserTyping, typing.Raw)
}

func (h *Hub) handleJoin(sessionID string, join types.JoinConversation) {
	h.join(sessionID, types.ConversationRoom(join.ConversationID))

	if h.opts.HistoryLimit <= 0 {
		return
	}
	messages, err := h.store.History(h.context(), join.ConversationID, h.opts.HistoryLimit)
	if err != nil {
		log.Printf("History for conversation %s unavailable: %v", join.ConversationID, err)
		return
	}

	history := types.ConversationHistory{
		ConversationID: join.ConversationID,
		Messages:       make([]types.NewMessage, 0, len(messages)),
	}
	for _, m := range messages {
		history.Messages = append(history.Messages, types.NewMessageFrom(m))
	}
	h.router.PublishToSession(sessionID, types.EventConversationHistory, history)
}

func (h *Hub) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.baseCtx
}

// SessionCount returns the number of connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
