package interfaces

// Sink is one live client session as seen by the room router.
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between WebSocket infrastructure and routing
type Sink interface {
	// SessionID returns the opaque identifier unique to this connection.
	SessionID() string

	// Emit queues an event frame for the client without blocking.
	// FUNCTIONAL DISCOVERY: delivery is fire-and-forget; an error means the
	// frame was dropped, never that the caller should retry
	Emit(event string, payload interface{}) error

	// Close closes the connection and cleans up resources.
	Close() error
}
