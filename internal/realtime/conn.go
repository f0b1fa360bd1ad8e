package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// sendBufferSize bounds the per-connection outbound queue; a full queue
	// drops frames rather than stalling the hub.
	sendBufferSize = 256
	pingInterval   = 25 * time.Second
)

// Conn is one client websocket connection.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	logger zerolog.Logger

	// mu makes enqueue and closeSend mutually exclusive: a broadcast that
	// snapshotted this connection before it unregistered must never send on
	// the closed channel.
	mu     sync.Mutex
	closed bool
}

func newConn(id string, ws *websocket.Conn, logger zerolog.Logger) *Conn {
	return &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With().Str("conn", id).Logger(),
	}
}

// ID returns the connection id. It doubles as the name of the connection's
// self-room for unicast addressing.
func (c *Conn) ID() string { return c.id }

// enqueue queues an encoded frame for delivery. Slow consumers lose frames;
// delivery is best-effort. Frames arriving after closeSend are dropped.
func (c *Conn) enqueue(encoded []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- encoded:
	default:
		c.logger.Warn().Msg("Send buffer full, dropping frame")
	}
}

// closeSend signals the write pump to flush and close the socket. Idempotent.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump serializes all socket writes: queued frames plus keepalive pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed, abandoning connection")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
