package realtime

import (
	"log"
	"sync"
)

// Hub is the process-scoped registry of connected clients keyed by user
// identifier. Entries are added on connect and removed on disconnect; there
// is no persistence across restarts and no replay. Delivery is best-effort
// and never blocks or fails the caller.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	sendBufferSize int
}

// NewHub creates an empty client registry.
func NewHub(sendBufferSize int) *Hub {
	if sendBufferSize <= 0 {
		sendBufferSize = 16
	}
	return &Hub{
		clients:        make(map[string]map[*Client]struct{}),
		sendBufferSize: sendBufferSize,
	}
}

// Register adds a client to the registry under its user identifier.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	log.Printf("realtime: client connected for user %s (%d total)", c.userID, len(set))
}

// Unregister removes a client and closes its send channel. Safe to call more
// than once for the same client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	log.Printf("realtime: client disconnected for user %s", c.userID)
}

// Publish delivers the event to every client currently registered for the
// user. If no client is connected, or a client's buffer is full, the event is
// dropped; there is no queue.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- ev:
		default:
			log.Printf("realtime: send buffer full for user %s, dropping %s event", userID, ev.Type)
		}
	}
}

// ConnectedUsers returns the number of users with at least one live client.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
