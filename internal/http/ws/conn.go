package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/review-orchestrator/internal/stream"
	"github.com/tbourn/review-orchestrator/internal/throttle"
)

// Conn is one WebSocket client. It is both the event-bus sink and the
// throttle client for that connection. Writes are serialized: the bus writer
// goroutine, the reply path, and the pinger share the socket.
type Conn struct {
	id     string
	remote string
	ws     *websocket.Conn

	writeWait time.Duration
	mu        sync.Mutex
}

func newConn(id, remote string, c *websocket.Conn, writeWait time.Duration) *Conn {
	return &Conn{id: id, remote: remote, ws: c, writeWait: writeWait}
}

// ID implements stream.Sink and throttle.Client.
func (c *Conn) ID() string { return c.id }

// RemoteAddr implements throttle.Client.
func (c *Conn) RemoteAddr() string { return c.remote }

// Send implements stream.Sink.
func (c *Conn) Send(ev stream.Event) error { return c.writeJSON(ev) }

// Notify implements throttle.Client.
func (c *Conn) Notify(t throttle.Throttled) error {
	return c.writeJSON(stream.Throttled(t.Event, t.RetryAfter))
}

func (c *Conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteJSON(v)
}

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}
