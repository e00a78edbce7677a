package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrBufferFull       = errors.New("outbound buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Handler-related errors
var (
	ErrInvalidIdentity = errors.New("invalid handshake identity")
)
