package hub

import (
	"context"
	"log"
	"runtime"
	"time"

	"classbridge/pkg/types"
)

// Start runs the maintenance loop until ctx is cancelled or Stop is called.
// In-flight message writes use a context derived from ctx.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.baseCtx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	runCtx, done := h.baseCtx, h.done
	h.mu.Unlock()

	log.Println("Starting hub maintenance loop...")
	go h.run(runCtx, done)
	return nil
}

// Stop ends the maintenance loop and waits for it to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	cancel, done := h.cancel, h.done
	h.mu.Unlock()

	log.Println("Stopping hub...")
	cancel()
	<-done
	return nil
}

// IsRunning reports whether the maintenance loop is active
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer log.Println("Hub maintenance loop stopped")

	var healthTick <-chan time.Time
	if h.opts.HealthInterval > 0 {
		ticker := time.NewTicker(h.opts.HealthInterval)
		defer ticker.Stop()
		healthTick = ticker.C
	}

	cleanupInterval := h.opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-healthTick:
			h.emitter.EmitSystemHealth(h.ReportHealth(ctx))

		case <-cleanup.C:
			if removed := h.limiter.Cleanup(); removed > 0 {
				log.Printf("Rate limiter dropped %d idle senders", removed)
			}

		case <-ctx.Done():
			return
		}
	}
}

// ReportHealth builds a system_health payload from process and store state.
// TECHNICAL DISCOVERY: a failing store makes the system unhealthy because chat
// cannot be delivered without it; memory pressure only degrades it
func (h *Hub) ReportHealth(ctx context.Context) types.SystemHealth {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := types.HealthHealthy
	if h.opts.MemoryLimit > 0 && mem.HeapAlloc > h.opts.MemoryLimit {
		status = types.HealthDegraded
	}
	if h.health != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := h.health.HealthCheck(checkCtx)
		cancel()
		if err != nil {
			log.Printf("Store health check failed: %v", err)
			status = types.HealthUnhealthy
		}
	}

	return types.SystemHealth{
		Status: status,
		Uptime: time.Since(h.started).Seconds(),
		MemoryUsage: types.MemoryUsage{
			HeapAlloc:  mem.HeapAlloc,
			HeapSys:    mem.HeapSys,
			Sys:        mem.Sys,
			Goroutines: runtime.NumGoroutine(),
		},
		ActiveConnections: h.router.SessionCount(),
		Timestamp:         types.Timestamp(time.Now()),
	}
}
