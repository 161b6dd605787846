package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linepulse/linepulse/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-connection outgoing message buffer depth.
	// When it saturates, events are dropped and the subscriber is marked
	// for a full-snapshot resync instead of blocking the line worker.
	sendBufSize = 32

	maxRequestBytes = 4096
)

// conn represents one connected dashboard client.
type conn struct {
	id   string
	ws   *websocket.Conn
	hub  *Hub
	send chan []byte

	// mu orders push against close: requests dispatched from readPump can
	// still be pushing while the hub shuts the connection down.
	mu     sync.Mutex
	closed bool
}

// push marshals an envelope and enqueues it without blocking. It reports
// whether the message was accepted; a full buffer or a closed connection
// drops the message.
func (c *conn) push(env types.Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("hub: marshal envelope", "event", env.Event, "err", err)
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the send channel so writePump exits. Idempotent; after close
// every push is a silent drop.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// pushError sends a typed error event to the client, best-effort.
func (c *conn) pushError(code types.ErrorCode, msg, lineID string) {
	env, err := types.NewEnvelope(types.EventError, 0, types.ErrorPayload{
		Code:    code,
		Message: msg,
		LineID:  lineID,
	})
	if err != nil {
		return
	}
	c.push(env)
}

// writePump drains the connection's send channel and forwards messages to the
// WebSocket. It also sends periodic ping frames. Runs in its own goroutine
// per connection.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub shutdown or connection removed).
				c.ws.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client requests, dispatches them, and detects disconnects.
// Blocks until the connection closes.
func (c *conn) readPump() {
	defer c.ws.Close()
	c.ws.SetReadLimit(maxRequestBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var req types.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.pushError(types.ErrCodeValidation, "malformed request", "")
			continue
		}
		c.hub.dispatch(c, req)
	}
}
