package types

import (
	"errors"
	"fmt"
)

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidID         = errors.New("identifier must be a JSON string or number")
	ErrInvalidUserID     = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidEnvelope   = errors.New("frame must be a JSON object with an event name")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrMissingField      = errors.New("required field missing")
	ErrMessageTooLarge   = errors.New("message text exceeds 64KB limit")
	ErrEmptyConversation = errors.New("conversationId is required")
	ErrInvalidAdminEvent = errors.New("invalid admin event payload")
)

// PersistenceError reports that the message store was unavailable or rejected
// a write. It is surfaced to the originating sender only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed inbound payload. The frame is dropped
// and the connection stays open.
type ValidationError struct {
	Event string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s: %v", e.Event, e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Event, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err carries a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
