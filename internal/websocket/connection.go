package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"groupchat/pkg/interfaces"
)

// Options tunes a connection's buffering and heartbeat.
type Options struct {
	SendBuffer    int
	WriteTimeout  time.Duration
	PongWait      time.Duration
	PingInterval  time.Duration
	MaxFrameBytes int64
	// AllowedOrigins restricts the Origin header on upgrade. Empty allows all.
	AllowedOrigins []string
}

// DefaultOptions returns production connection settings. The frame limit
// leaves room for a base64 image at the 5 MiB decoded cap.
func DefaultOptions() Options {
	return Options{
		SendBuffer:    100,
		WriteTimeout:  5 * time.Second,
		PongWait:      60 * time.Second,
		PingInterval:  30 * time.Second,
		MaxFrameBytes: 16 << 20,
	}
}

// Connection wraps a gorilla connection. Writes are serialized through a
// single writer goroutine; reads belong to the owning session.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    zerolog.Logger
}

var _ interfaces.Stream = (*Connection)(nil)

// NewConnection wraps conn and starts its writer.
func NewConnection(conn *websocket.Conn, opts Options, logger zerolog.Logger) *Connection {
	defaults := DefaultOptions()
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.SendBuffer < 0 {
		opts.SendBuffer = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Connection{
		id:      id,
		conn:    conn,
		writeCh: make(chan []byte, opts.SendBuffer),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With().Str("conn_id", id).Logger(),
	}

	if opts.MaxFrameBytes > 0 {
		conn.SetReadLimit(opts.MaxFrameBytes)
	}
	if opts.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		})
	}

	go c.writeLoop()
	return c
}

// ID returns the connection's random identifier.
func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) writeLoop() {
	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.abort(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.abort(err)
				return
			}

		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.abort(err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// abort tears the connection down after a transport failure. No close frame
// is attempted since the transport is already broken.
func (c *Connection) abort(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug().Err(err).Msg("write failed, dropping connection")
		c.cancel()
		_ = c.conn.Close()
	})
}

// Send queues payload for the writer. The queue bounds memory; a full queue
// blocks until ctx ends.
func (c *Connection) Send(ctx context.Context, payload []byte) error {
	if c.ctx.Err() != nil {
		return interfaces.ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case c.writeCh <- payload:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWriteTimeout, ctx.Err())
	case <-c.ctx.Done():
		return interfaces.ErrConnectionClosed
	}
}

// Receive reads the next text frame.
func (c *Connection) Receive() ([]byte, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrPeerClosed, err)
		}
		if c.ctx.Err() != nil {
			return nil, interfaces.ErrConnectionClosed
		}
		return nil, err
	}
	if c.opts.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	}

	if messageType == websocket.BinaryMessage {
		return nil, interfaces.ErrUnsupportedFrame
	}
	return data, nil
}

// Close sends a close frame and releases the socket. Frames still queued
// are dropped.
func (c *Connection) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
		err = c.conn.Close()
	})
	return err
}
