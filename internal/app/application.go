package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"classbridge/internal/admin"
	"classbridge/internal/api"
	"classbridge/internal/auth"
	"classbridge/internal/config"
	"classbridge/internal/database"
	"classbridge/internal/hub"
	"classbridge/internal/persistence"
	"classbridge/internal/presence"
	"classbridge/internal/router"
	"classbridge/internal/websocket"
	pkgdatabase "classbridge/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config    *config.Config
	dbManager *database.Manager
	registry  *websocket.Registry
	router    *router.Router
	hub       *hub.Hub
	server    *api.Server

	stopOnce sync.Once
	stopErr  error
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Store → Registry/Router → Emitter → Hub → Auth → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Initialize database manager (foundation layer, applies migrations)
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.MigrationsPath = cfg.Database.MigrationsPath

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Message persistence over the store
	store := persistence.NewStore(dbManager)

	// STEP 3: Connection registry and room router
	registry := websocket.NewRegistry()
	messageRouter := router.NewRouter()

	// STEP 4: Admin emitter and presence, both views over registry and router
	emitter := admin.NewEmitter(messageRouter, registry)
	tracker := presence.NewTracker(registry, messageRouter)

	// STEP 5: Lifecycle hub
	messageHub := hub.NewHub(registry, messageRouter, store, emitter, dbManager, hub.Options{
		HealthInterval:  cfg.Hub.HealthInterval,
		CleanupInterval: cfg.Hub.CleanupInterval,
		HistoryLimit:    cfg.Hub.HistoryLimit,
		RateLimit:       cfg.Hub.RateLimit,
		MemoryLimit:     cfg.Hub.MemoryLimitMB << 20,
	})

	// STEP 6: Handshake authentication and websocket transport
	authenticator := auth.NewAuthenticator(auth.Config{
		Secret: cfg.Auth.Secret,
		Issuer: cfg.Auth.Issuer,
	})
	if !authenticator.VerifiesTokens() {
		log.Println("WARNING: no auth secret configured, trusting user_id and role query parameters")
	}

	wsHandler := websocket.NewHandler(authenticator, messageHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
		MaxFrameSize: cfg.WebSocket.MaxFrameSize,
	})

	// STEP 7: HTTP surface with both REST and websocket routes
	server := api.NewServer(api.Deps{
		Emitter:      emitter,
		Tracker:      tracker,
		History:      store,
		Health:       messageHub,
		People:       dbManager,
		Guard:        authenticator.RequireRole,
		WebSocket:    wsHandler.HandleWebSocket,
		HistoryLimit: cfg.Hub.HistoryLimit,
	})
	server.SetTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)

	return &Application{
		config:    cfg,
		dbManager: dbManager,
		registry:  registry,
		router:    messageRouter,
		hub:       messageHub,
		server:    server,
	}, nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.Addr())
	if err != nil {
		_ = app.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", app.Addr(), err)
	}
	return app.Serve(ctx, ln)
}

// Serve runs the hub and the HTTP server on ln until ctx is cancelled or
// either fails, then shuts everything down.
// ARCHITECTURAL DISCOVERY: the hub starts before the listener accepts so the
// first connection already has a running maintenance loop and write context
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	log.Printf("Starting ClassBridge realtime layer on %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)

	if err := app.hub.Start(gctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start hub: %w", err)
	}

	g.Go(func() error {
		if err := app.server.Serve(ln); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.HTTP.ShutdownTimeout)
		defer cancel()
		return app.Stop(shutdownCtx)
	})

	return g.Wait()
}

// Stop gracefully shuts down the application. It is safe to call more than once.
// Reverse dependency order: HTTP → websocket sessions → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	app.stopOnce.Do(func() {
		log.Printf("Shutting down ClassBridge realtime layer")

		// STEP 1: Stop accepting new connections
		if err := app.server.Shutdown(ctx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		// STEP 2: Hijacked websocket connections are not covered by Shutdown
		if n := app.router.CloseAll(); n > 0 {
			log.Printf("Closed %d websocket sessions", n)
			app.awaitDrain(ctx)
		}

		// STEP 3: Stop the maintenance loop
		if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
			log.Printf("Hub shutdown error: %v", err)
		}

		// STEP 4: Close database connections
		if err := app.dbManager.Close(); err != nil {
			log.Printf("Database shutdown error: %v", err)
			app.stopErr = err
		}

		log.Printf("ClassBridge shutdown complete")
	})
	return app.stopErr
}

// awaitDrain waits for closed sessions to run their disconnect teardown.
func (app *Application) awaitDrain(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for app.router.SessionCount() > 0 {
		select {
		case <-ctx.Done():
			log.Printf("Shutdown deadline reached with %d sessions attached", app.router.SessionCount())
			return
		case <-ticker.C:
		}
	}
}

// Addr returns the configured listen address
func (app *Application) Addr() string {
	return app.config.HTTP.Addr()
}

// Handler exposes the HTTP routes for tests and embedding.
func (app *Application) Handler() http.Handler {
	return app.server.Handler()
}

// OnlineCount returns the number of users with a live session
func (app *Application) OnlineCount() int {
	return app.registry.OnlineCount()
}
