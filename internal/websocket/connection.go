package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classbridge/pkg/interfaces"
	"classbridge/pkg/types"
)

// Options tunes a connection's heartbeat, deadlines and outbound buffer.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
	MaxFrameSize int64
}

// DefaultOptions returns the heartbeat and buffer settings used in production
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
		MaxFrameSize: 128 * 1024,
	}
}

// Connection wraps a gorilla websocket as a router Sink.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, so every frame
// and every ping goes through the single writeLoop goroutine
type Connection struct {
	id        string
	conn      *websocket.Conn
	opts      Options
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ interfaces.Sink = (*Connection)(nil)

// NewConnection wraps conn with a fresh session id and starts its writer.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.NewString(),
		conn:    conn,
		opts:    opts,
		writeCh: make(chan []byte, opts.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// SessionID returns the connection's unique session id
func (c *Connection) SessionID() string {
	return c.id
}

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context {
	return c.ctx
}

func (c *Connection) writeLoop() {
	var pings <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer func() { _ = c.Close() }()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Write to session %s failed: %v", c.id, err)
				return
			}

		case <-pings:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Emit encodes an {event, data} frame and queues it without blocking.
// FUNCTIONAL DISCOVERY: at-most-once delivery. A full buffer drops the frame
// with ErrBufferFull rather than stalling the publisher
func (c *Connection) Emit(event string, payload interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrBufferFull
	}
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrInvalidJSON
	}
	frame, err := json.Marshal(types.Envelope{Event: event, Data: data})
	if err != nil {
		return nil, ErrInvalidJSON
	}
	return frame, nil
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// readPump feeds text frames to onFrame until the peer goes away or the
// read deadline lapses without a pong.
func (c *Connection) readPump(onFrame func([]byte)) {
	if c.opts.MaxFrameSize > 0 {
		c.conn.SetReadLimit(c.opts.MaxFrameSize)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error on session %s: %v", c.id, err)
			}
			return
		}
		if messageType == websocket.TextMessage {
			onFrame(data)
		}
	}
}
