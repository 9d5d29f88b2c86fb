package session

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
)

// Manager tracks connected dashboard clients.
type Manager struct {
	mu         sync.RWMutex
	clients    map[uint64]*Client
	bufferSize int
	log        *zap.Logger
}

// NewManager creates a session manager. bufferSize sets each client's
// outbound send buffer.
func NewManager(bufferSize int, log *zap.Logger) *Manager {
	return &Manager{clients: make(map[uint64]*Client), bufferSize: bufferSize, log: log}
}

// Register subscribes a new client to the bus and tracks the connection.
func (m *Manager) Register(conn *websocket.Conn, b *bus.Bus) *Client {
	c := NewClient(conn, b.Subscribe(m.bufferSize), m.bufferSize)

	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	m.log.Info("dashboard client connected", zap.Uint64("client_id", c.ID), zap.String("remote_addr", conn.RemoteAddr().String()))
	return c
}

// Unregister removes a client and releases its bus subscription.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()

	c.Close()
	m.log.Info("dashboard client disconnected", zap.Uint64("client_id", c.ID))
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
