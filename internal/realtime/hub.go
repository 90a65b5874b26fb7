package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// TextMessage matches the websocket text frame opcode.
const TextMessage = 1

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type client struct {
	conn Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(TextMessage, payload)
}

// Hub fans status payloads out to the websocket clients connected to this instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[Conn]*client
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[Conn]*client), logger: logger}
}

// Register adds conn and sends it the initial payload when one is given.
func (h *Hub) Register(conn Conn, initial []byte) error {
	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[conn] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client registered", zap.Int("clients", total))
	if initial == nil {
		return nil
	}
	if err := c.write(initial); err != nil {
		h.Unregister(conn)
		return err
	}
	return nil
}

// Unregister removes conn and closes it.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		_ = conn.Close()
		h.logger.Debug("websocket client unregistered", zap.Int("clients", total))
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast writes payload to every client; clients that fail are dropped.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			h.Unregister(c.conn)
		}
	}
}

// Publish broadcasts locally, ignoring channel. It lets the hub stand in for Redis on a single
// instance.
func (h *Hub) Publish(_ context.Context, _ string, payload []byte) error {
	h.Broadcast(payload)
	return nil
}
