package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Roles understood by the realtime layer. Any other non-empty role still gets
// its own role room; these are the ones the emitter's business rules refer to.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleParent  = "parent"
	RoleStudent = "student"
)

// Room name prefixes. The three namespaces are disjoint by construction.
const (
	userRoomPrefix         = "user:"
	roleRoomPrefix         = "role:"
	conversationRoomPrefix = "conversation:"
)

// ID is a user, conversation or entity identifier.
// ARCHITECTURAL DISCOVERY: clients send identifiers as JSON numbers or strings
// interchangeably, so the wire form is preserved instead of forcing one type
type ID string

// UnmarshalJSON accepts a JSON string or a JSON number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrInvalidID
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes integer identifiers as JSON numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// IsNumeric reports whether the identifier is a canonical integer literal.
// Forms such as "007", "+7" and "-0" are not, and stay strings on the wire.
func (id ID) IsNumeric() bool {
	if id == "" {
		return false
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == string(id)
}

// String returns the identifier text.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the identifier is absent.
func (id ID) IsZero() bool {
	return id == ""
}

// Identity is the authenticated handshake result handed to the realtime layer.
// An empty UserID is an anonymous session.
type Identity struct {
	UserID ID     `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
}

// IsAnonymous reports whether the session has no user identity.
func (i Identity) IsAnonymous() bool {
	return i.UserID.IsZero()
}

// Message is a persisted chat record.
// FUNCTIONAL DISCOVERY: ID and CreatedAt are always server assigned so the
// store, not the client, defines ordering within a conversation
type Message struct {
	ID             int64     `json:"id"`
	ConversationID ID        `json:"conversationId"`
	SenderID       ID        `json:"senderId"`
	Text           string    `json:"message"`
	SenderName     string    `json:"senderName"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserRoom returns the room that reaches every session of a user.
func UserRoom(userID ID) string {
	return userRoomPrefix + userID.String()
}

// RoleRoom returns the room shared by every session holding role.
func RoleRoom(role string) string {
	return roleRoomPrefix + role
}

// ConversationRoom returns the room of a chat thread.
func ConversationRoom(conversationID ID) string {
	return conversationRoomPrefix + conversationID.String()
}

// Timestamp formats t as the ISO-8601 UTC form used on the wire.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
