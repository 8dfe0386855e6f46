package ws

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"chat-backend/internal/observability"
)

// Hub is the process-local connection registry: at most one live client per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[int]*Client
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[int]*Client),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

// Register makes client the user's live connection. A previous client is
// evicted from the registry but left running; it ends on its own.
func (h *Hub) Register(userID int, client *Client) {
	client.markOpen()

	h.mu.Lock()
	prev := h.clients[userID]
	h.clients[userID] = client
	h.mu.Unlock()

	if prev != nil && prev != client {
		h.logger.Debug().Int("user_id", userID).Str("evicted_conn_id", prev.info.ConnID).Msg("connection replaced")
	}
}

// Unregister removes the entry only when it still points at client, so a
// late close from a replaced connection cannot drop the newer one.
func (h *Hub) Unregister(userID int, client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[userID]; ok && current == client {
		delete(h.clients, userID)
		return true
	}
	return false
}

// Lookup returns the user's registered client, if any.
func (h *Hub) Lookup(userID int) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[userID]
	return client, ok
}

// Push attempts a best-effort, non-blocking delivery. False means the user is
// not reachable right now, not that anything failed.
func (h *Hub) Push(userID int, event any) bool {
	client, ok := h.Lookup(userID)
	if !ok {
		observability.ObservePush(false)
		return false
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", userID).Msg("encode push event")
		observability.ObservePush(false)
		return false
	}

	delivered := client.enqueue(payload)
	if !delivered {
		h.logger.Warn().Int("user_id", userID).Str("state", client.State().String()).Msg("push dropped")
	}
	observability.ObservePush(delivered)
	return delivered
}

// IsOnline reports whether the user has a registered connection.
func (h *Hub) IsOnline(userID int) bool {
	_, ok := h.Lookup(userID)
	return ok
}

// OnlineUsers lists connected user ids in ascending order.
func (h *Hub) OnlineUsers() []int {
	h.mu.RLock()
	ids := make([]int, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// Count is the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every registered client, used on shutdown.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close(reason)
	}
}
