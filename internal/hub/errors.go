package hub

import "errors"

// Hub lifecycle and dispatch errors
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrSenderMismatch    = errors.New("senderId does not match the connected user")
	ErrUnknownSession    = errors.New("session is not connected")
)
