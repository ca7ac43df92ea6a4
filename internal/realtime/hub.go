package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is one websocket connection of an owner. Writes are serialized
// because a websocket connection supports a single concurrent writer.
type Client struct {
	OwnerID string
	conn    *websocket.Conn
	mu      sync.Mutex
}

func NewClient(ownerID string, conn *websocket.Conn) *Client {
	return &Client{OwnerID: ownerID, conn: conn}
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// Ping sends a keepalive frame.
func (c *Client) Ping() error {
	return c.write(websocket.PingMessage, nil)
}

// Hub tracks live websocket clients per owner and pushes events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{}), logger: logger}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.OwnerID] == nil {
		h.clients[c.OwnerID] = make(map[*Client]struct{})
	}
	h.clients[c.OwnerID][c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set := h.clients[c.OwnerID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.OwnerID)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Connections returns the number of live connections for owner.
func (h *Hub) Connections(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}

// Publish sends ev to every connection of its owner. Failed connections are
// dropped.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal realtime event", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[ev.OwnerID]))
	for c := range h.clients[ev.OwnerID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			h.logger.DebugContext(ctx, "dropping websocket client", "owner_id", c.OwnerID, "error", err)
			h.Unregister(c)
		}
	}
}
