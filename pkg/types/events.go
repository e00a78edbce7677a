package types

import (
	"bytes"
	"encoding/json"
)

// Inbound event names accepted on a connection.
const (
	EventSendMessage       = "send_message"
	EventUserTyping        = "user_typing"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
)

// Outbound event names delivered to sessions.
const (
	EventConnected           = "connected"
	EventNewMessage          = "new_message"
	EventMessageError        = "message_error"
	EventError               = "error"
	EventConversationHistory = "conversation_history"

	EventNewSubmission    = "new_submission"
	EventNewUser          = "new_user"
	EventAttendanceUpdate = "attendance_update"
	EventHomeworkCreated  = "homework_created"
	EventSystemHealth     = "system_health"
	EventNotification     = "notification"
	EventPresenceUpdate   = "presence_update"
)

// StatusDelivered marks a new_message that was persisted before broadcast.
const StatusDelivered = "delivered"

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is one of the closed set of client events. Only this package
// implements it.
type Inbound interface {
	EventName() string
	inbound()
}

// SendMessage asks the server to persist and broadcast a chat message.
type SendMessage struct {
	ConversationID ID     `json:"conversationId"`
	SenderID       ID     `json:"senderId"`
	Message        string `json:"message"`
}

// UserTyping is relayed verbatim to the conversation room; Raw keeps the
// original data object so unknown client fields survive the relay.
type UserTyping struct {
	ConversationID ID              `json:"conversationId"`
	UserID         ID              `json:"userId"`
	Typing         bool            `json:"typing"`
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// JoinConversation subscribes the session to a conversation room.
type JoinConversation struct {
	ConversationID ID `json:"conversationId"`
}

// LeaveConversation unsubscribes the session from a conversation room.
type LeaveConversation struct {
	ConversationID ID `json:"conversationId"`
}

func (SendMessage) EventName() string       { return EventSendMessage }
func (UserTyping) EventName() string        { return EventUserTyping }
func (JoinConversation) EventName() string  { return EventJoinConversation }
func (LeaveConversation) EventName() string { return EventLeaveConversation }

func (SendMessage) inbound()       {}
func (UserTyping) inbound()        {}
func (JoinConversation) inbound()  {}
func (LeaveConversation) inbound() {}

// DecodeInbound parses a raw frame into its typed variant and validates it.
// Every failure is a *ValidationError naming the event when it is known.
func DecodeInbound(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		return nil, &ValidationError{Err: ErrInvalidEnvelope}
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}

	var (
		event Inbound
		err   error
	)
	switch env.Event {
	case EventSendMessage:
		var msg SendMessage
		err = json.Unmarshal(data, &msg)
		event = msg
	case EventUserTyping:
		var typing UserTyping
		err = json.Unmarshal(data, &typing)
		typing.Raw = append(json.RawMessage(nil), data...)
		event = typing
	case EventJoinConversation:
		var join JoinConversation
		err = json.Unmarshal(data, &join)
		event = join
	case EventLeaveConversation:
		var leave LeaveConversation
		err = json.Unmarshal(data, &leave)
		event = leave
	default:
		return nil, &ValidationError{Event: env.Event, Err: ErrUnknownEvent}
	}
	if err != nil {
		return nil, &ValidationError{Event: env.Event, Err: err}
	}

	if err := ValidateInbound(event); err != nil {
		return nil, err
	}
	return event, nil
}

// NewMessage is the broadcast shape of a persisted chat message.
type NewMessage struct {
	ID             int64  `json:"id"`
	ConversationID ID     `json:"conversationId"`
	SenderID       ID     `json:"senderId"`
	Message        string `json:"message"`
	SenderName     string `json:"senderName"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
}

// NewMessageFrom builds the new_message payload for a stored message.
func NewMessageFrom(msg *Message) NewMessage {
	return NewMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Message:        msg.Text,
		SenderName:     msg.SenderName,
		Status:         StatusDelivered,
		CreatedAt:      Timestamp(msg.CreatedAt),
	}
}

// ErrorPayload is the body of message_error and error replies.
type ErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Connected acknowledges a completed handshake to the new session.
type Connected struct {
	SessionID string   `json:"sessionId"`
	UserID    ID       `json:"userId,omitempty"`
	Role      string   `json:"role,omitempty"`
	Rooms     []string `json:"rooms"`
}

// ConversationHistory is sent to a session right after it joins a conversation.
type ConversationHistory struct {
	ConversationID ID           `json:"conversationId"`
	Messages       []NewMessage `json:"messages"`
}
