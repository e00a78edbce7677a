package interfaces

import (
	"context"

	"classbridge/pkg/types"
)

// MessageStore is the persistence surface the realtime layer consumes.
type MessageStore interface {
	// InsertMessage durably stores a message and assigns its ID.
	// FUNCTIONAL DISCOVERY: Message storage must complete before routing
	// so the store stays the source of truth for chat history
	InsertMessage(ctx context.Context, message *types.Message) error

	// FindPersonName resolves a display name across users and staff.
	// The boolean is false when no person matches.
	FindPersonName(ctx context.Context, personID types.ID) (string, bool, error)

	// ConversationHistory returns up to limit most recent messages of a
	// conversation in ascending ID order.
	ConversationHistory(ctx context.Context, conversationID types.ID, limit int) ([]*types.Message, error)
}

// DatabaseManager handles all database operations
type DatabaseManager interface {
	MessageStore

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
