package persistence

import (
	"context"
	"log"

	"classbridge/pkg/interfaces"
	"classbridge/pkg/types"
)

// UnknownSender is the display name used when a sender id matches no person.
const UnknownSender = "Unknown"

// Store persists chat messages ahead of their broadcast and resolves sender names.
// It holds no locks of its own; callers must not hold router or registry locks
// while calling it.
type Store struct {
	messages interfaces.MessageStore
}

// NewStore creates a Store over the given message store
func NewStore(messages interfaces.MessageStore) *Store {
	return &Store{messages: messages}
}

// SaveMessage durably records a message and returns it with id, createdAt and
// the sender's display name filled in.
// FUNCTIONAL DISCOVERY: the write is the source of truth. A failed write returns
// a *types.PersistenceError and the caller must not broadcast. A failed name
// lookup after a successful write only degrades the name to "Unknown".
func (s *Store) SaveMessage(ctx context.Context, conversationID, senderID types.ID, text string) (*types.Message, error) {
	message := &types.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
	}

	if err := s.messages.InsertMessage(ctx, message); err != nil {
		return nil, &types.PersistenceError{Op: "insert message", Err: err}
	}

	message.SenderName = s.resolveName(ctx, senderID)
	return message, nil
}

// History returns up to limit recent messages of a conversation, oldest first.
func (s *Store) History(ctx context.Context, conversationID types.ID, limit int) ([]*types.Message, error) {
	messages, err := s.messages.ConversationHistory(ctx, conversationID, limit)
	if err != nil {
		return nil, &types.PersistenceError{Op: "load history", Err: err}
	}
	for _, m := range messages {
		if m.SenderName == "" {
			m.SenderName = UnknownSender
		}
	}
	return messages, nil
}

func (s *Store) resolveName(ctx context.Context, senderID types.ID) string {
	name, found, err := s.messages.FindPersonName(ctx, senderID)
	if err != nil {
		log.Printf("Sender name lookup failed for %s: %v", senderID, err)
		return UnknownSender
	}
	if !found || name == "" {
		return UnknownSender
	}
	return name
}
