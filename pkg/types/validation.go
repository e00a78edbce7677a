package types

import (
	"regexp"
	"strings"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	roleRegex   = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// MaxMessageBytes caps chat text accepted from clients (64KB).
const MaxMessageBytes = 65536

// ValidateInbound performs structural validation of a decoded client event.
// ARCHITECTURAL DISCOVERY: presence checks only; authorization and business
// rules belong to the collaborators that own them
func ValidateInbound(event Inbound) error {
	switch e := event.(type) {
	case SendMessage:
		return e.Validate()
	case UserTyping:
		return requireConversation(EventUserTyping, e.ConversationID)
	case JoinConversation:
		return requireConversation(EventJoinConversation, e.ConversationID)
	case LeaveConversation:
		return requireConversation(EventLeaveConversation, e.ConversationID)
	default:
		return &ValidationError{Err: ErrUnknownEvent}
	}
}

// Validate ensures the send_message payload carries every required field.
func (m SendMessage) Validate() error {
	if m.ConversationID.IsZero() {
		return &ValidationError{Event: EventSendMessage, Field: "conversationId", Err: ErrMissingField}
	}
	if m.SenderID.IsZero() {
		return &ValidationError{Event: EventSendMessage, Field: "senderId", Err: ErrMissingField}
	}
	if strings.TrimSpace(m.Message) == "" {
		return &ValidationError{Event: EventSendMessage, Field: "message", Err: ErrMissingField}
	}
	if len(m.Message) > MaxMessageBytes {
		return &ValidationError{Event: EventSendMessage, Field: "message", Err: ErrMessageTooLarge}
	}
	return nil
}

func requireConversation(event string, conversationID ID) error {
	if conversationID.IsZero() {
		return &ValidationError{Event: event, Field: "conversationId", Err: ErrEmptyConversation}
	}
	return nil
}

// IsValidUserID checks if a user ID meets format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit prevents database issues
// and ensures reasonable display in UI components
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRole checks that a role can be embedded in a room name.
func IsValidRole(role string) bool {
	if len(role) < 1 || len(role) > 30 {
		return false
	}
	return roleRegex.MatchString(role)
}
