// Package session manages dashboard WebSocket connections: each client
// subscribes to the event bus and receives every PipelineEvent as JSON,
// matching spec §6's event stream contract.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/latencyx/core/internal/bus"
)

// Client represents one connected dashboard WebSocket client.
type Client struct {
	ID   uint64
	Conn *websocket.Conn
	Sub  *bus.Subscription

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

var clientIDCounter uint64

// NewClient wraps a WebSocket connection and its bus subscription.
func NewClient(conn *websocket.Conn, sub *bus.Subscription, bufferSize int) *Client {
	return &Client{
		ID:     atomic.AddUint64(&clientIDCounter, 1),
		Conn:   conn,
		Sub:    sub,
		sendCh: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

// Send enqueues data to be written to the client. Returns false if the
// buffer is full (message dropped) — the dashboard tolerates drops the
// same way any other bus subscriber does.
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

// SendCh returns the send channel for the write pump.
func (c *Client) SendCh() <-chan []byte { return c.sendCh }

// Done returns a channel closed when the client disconnects.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close terminates the connection and unsubscribes from the bus.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
		c.Sub.Close()
	})
}
