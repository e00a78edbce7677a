package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"classbridge/internal/admin"
	"classbridge/internal/database"
	"classbridge/internal/presence"
	"classbridge/pkg/types"
)

// HistoryReader loads persisted conversation messages.
type HistoryReader interface {
	History(ctx context.Context, conversationID types.ID, limit int) ([]*types.Message, error)
}

// HealthReporter builds the process health figures.
type HealthReporter interface {
	ReportHealth(ctx context.Context) types.SystemHealth
}

// PersonDirectory records display names so chat senders resolve by name.
type PersonDirectory interface {
	UpsertPerson(ctx context.Context, dir database.Directory, id types.ID, name, email, role string) error
}

// Guard wraps routes that may only be called by the given roles.
type Guard func(roles ...string) echo.MiddlewareFunc

// Deps are the collaborators the REST surface is wired to.
type Deps struct {
	Emitter   *admin.Emitter
	Tracker   *presence.Tracker
	History   HistoryReader
	Health    HealthReporter
	People    PersonDirectory
	Guard     Guard
	WebSocket echo.HandlerFunc
	// HistoryLimit caps ?limit= on the messages endpoint; zero means 50.
	HistoryLimit int
}

// Server is the HTTP entry point: REST routes that trigger realtime events
// plus the websocket upgrade route.
// ARCHITECTURAL DISCOVERY: the REST layer owns no state, every route delegates
// to the realtime collaborators so HTTP and websocket clients see one view
type Server struct {
	echo *echo.Echo
	deps Deps
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string             `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	Connections presence.Snapshot  `json:"connections"`
	System      types.SystemHealth `json:"system"`
}

// PresenceResponse is returned by GET /api/presence.
type PresenceResponse struct {
	presence.Snapshot
	ConnectedAdmins int `json:"connectedAdmins"`
}

// DeliveryResponse reports how many sessions accepted an emitted event.
type DeliveryResponse struct {
	Delivered int `json:"delivered"`
}

// NotifyRequest is a passthrough event addressed to a user or role room.
type NotifyRequest struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// MessagesResponse wraps a conversation's persisted history.
type MessagesResponse struct {
	ConversationID types.ID         `json:"conversationId"`
	Messages       []*types.Message `json:"messages"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// NewServer builds the echo instance and registers every route.
func NewServer(deps Deps) *Server {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 50
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/ws" },
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, deps: deps}
	s.routes()
	return s
}

func (s *Server) routes() {
	guard := s.deps.Guard
	if guard == nil {
		guard = func(...string) echo.MiddlewareFunc {
			return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
		}
	}

	s.echo.GET("/health", s.healthCheck)
	if s.deps.WebSocket != nil {
		s.echo.GET("/ws", s.deps.WebSocket)
	}

	api := s.echo.Group("/api")
	api.GET("/presence", s.getPresence, guard(types.RoleAdmin))
	api.GET("/conversations/:id/messages", s.listMessages, guard(types.RoleAdmin, types.RoleTeacher, types.RoleParent))

	// FUNCTIONAL DISCOVERY: business events are raised by staff-side services
	events := api.Group("/events", guard(types.RoleAdmin, types.RoleTeacher))
	events.POST("/submissions", s.emitSubmission)
	events.POST("/users", s.emitNewUser)
	events.POST("/attendance", s.emitAttendance)
	events.POST("/homework", s.emitHomework)

	notify := api.Group("/notify", guard(types.RoleAdmin))
	notify.POST("/users/:id", s.notifyUser)
	notify.POST("/roles/:role", s.notifyRole)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// SetTimeouts bounds reading a request and writing its response. Upgraded
// websocket connections manage their own deadlines.
func (s *Server) SetTimeouts(read, write time.Duration) {
	s.echo.Server.ReadTimeout = read
	s.echo.Server.WriteTimeout = write
}

// Start serves HTTP on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("HTTP server listening on %s", ln.Addr())
	if err := s.echo.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// FUNCTIONAL DISCOVERY: GET /health - 503 when the store is unreachable so
// load balancers stop routing realtime clients here
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:      types.HealthHealthy,
		Timestamp:   time.Now().UTC(),
		Connections: s.deps.Tracker.Snapshot(),
	}
	if s.deps.Health != nil {
		response.System = s.deps.Health.ReportHealth(ctx)
		response.Status = response.System.Status
	}

	code := http.StatusOK
	if response.Status == types.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, response)
}

func (s *Server) getPresence(c echo.Context) error {
	return c.JSON(http.StatusOK, PresenceResponse{
		Snapshot:        s.deps.Tracker.Snapshot(),
		ConnectedAdmins: s.deps.Emitter.GetConnectedAdminCount(),
	})
}

func (s *Server) emitSubmission(c echo.Context) error {
	var event types.NewSubmission
	if err := bindValid(c, &event); err != nil {
		return err
	}
	return accepted(c, s.deps.Emitter.EmitNewSubmission(event))
}

// emitNewUser also records the person so later chat messages resolve a name.
func (s *Server) emitNewUser(c echo.Context) error {
	var event types.NewUser
	if err := bindValid(c, &event); err != nil {
		return err
	}

	if s.deps.People != nil {
		dir := database.DirectoryUsers
		if event.Role == types.RoleTeacher || event.Role == types.RoleAdmin {
			dir = database.DirectoryStaff
		}
		if err := s.deps.People.UpsertPerson(c.Request().Context(), dir, event.UserID, event.Name, event.Email, event.Role); err != nil {
			log.Printf("Failed to record user %s: %v", event.UserID, err)
			return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to record user")
		}
	}
	return accepted(c, s.deps.Emitter.EmitNewUser(event))
}

func (s *Server) emitAttendance(c echo.Context) error {
	var event types.AttendanceUpdate
	if err := bindValid(c, &event); err != nil {
		return err
	}
	return accepted(c, s.deps.Emitter.EmitAttendanceUpdate(event))
}

func (s *Server) emitHomework(c echo.Context) error {
	var event types.HomeworkCreated
	if err := bindValid(c, &event); err != nil {
		return err
	}
	return accepted(c, s.deps.Emitter.EmitHomeworkCreated(event))
}

func (s *Server) notifyUser(c echo.Context) error {
	req, err := bindNotify(c)
	if err != nil {
		return err
	}
	userID := types.ID(c.Param("id"))
	if !types.IsValidUserID(userID.String()) {
		return echo.NewHTTPError(http.StatusBadRequest, types.ErrInvalidUserID.Error())
	}
	return accepted(c, s.deps.Emitter.NotifyUser(userID, req.Event, req.Payload))
}

func (s *Server) notifyRole(c echo.Context) error {
	req, err := bindNotify(c)
	if err != nil {
		return err
	}
	role := c.Param("role")
	if !types.IsValidRole(role) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid role")
	}
	return accepted(c, s.deps.Emitter.NotifyRole(role, req.Event, req.Payload))
}

func (s *Server) listMessages(c echo.Context) error {
	conversationID := types.ID(c.Param("id"))

	limit := s.deps.HistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		if n < limit {
			limit = n
		}
	}

	messages, err := s.deps.History.History(c.Request().Context(), conversationID, limit)
	if err != nil {
		log.Printf("Failed to load history for conversation %s: %v", conversationID, err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "message store unavailable")
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	return c.JSON(http.StatusOK, MessagesResponse{ConversationID: conversationID, Messages: messages})
}

type validator interface {
	Validate() error
}

func bindValid(c echo.Context, dst validator) error {
	if err := c.Bind(dst); err != nil {
		return badRequest(err)
	}
	if err := dst.Validate(); err != nil {
		return badRequest(err)
	}
	return nil
}

func bindNotify(c echo.Context) (NotifyRequest, error) {
	var req NotifyRequest
	if err := c.Bind(&req); err != nil {
		return req, badRequest(err)
	}
	if req.Event == "" {
		return req, echo.NewHTTPError(http.StatusBadRequest, "event is required")
	}
	return req, nil
}

func accepted(c echo.Context, delivered int) error {
	return c.JSON(http.StatusAccepted, DeliveryResponse{Delivered: delivered})
}

func badRequest(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return echo.NewHTTPError(http.StatusBadRequest, he.Message)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// errorHandler renders every failure in the ErrorResponse shape.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else {
		log.Printf("Unhandled API error: %v", err)
	}

	if err := c.JSON(code, ErrorResponse{Error: http.StatusText(code), Code: code, Message: message}); err != nil {
		log.Printf("Failed to write error response: %v", err)
	}
}
