package hub

import (
	"errors"
	"sync"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

var (
	ErrHubClosed          = errors.New("hub is closed")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSendBufferFull     = errors.New("send buffer full")
)

// Hub is the registry of live connections on this instance. It indexes
// clients by connection id and by owning user.
type Hub struct {
	clients      map[string]*Client            // connectionID -> client
	users        map[string]map[string]*Client // userID -> connectionID -> client
	mu           sync.RWMutex
	closed       bool
	config       config.WebSocketConfig
	onUnregister func(*Client)
	hooks        sync.WaitGroup // in-flight onUnregister calls
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]*Client),
		config:  cfg,
	}
}

// OnUnregister sets a hook run exactly once for every client that leaves the
// registry, whatever removed it. It runs on the goroutine that removed the
// client and must not block.
func (h *Hub) OnUnregister(fn func(*Client)) {
	h.mu.Lock()
	h.onUnregister = fn
	h.mu.Unlock()
}

// Register adds client and returns its connection id.
func (h *Hub) Register(client *Client) (string, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}
	h.clients[client.ID] = client
	conns, ok := h.users[client.UserID]
	if !ok {
		conns = make(map[string]*Client)
		h.users[client.UserID] = conns
	}
	conns[client.ID] = client
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Str(log.FieldUserID, client.UserID).Msg("client registered")
	return client.ID, nil
}

// Unregister removes client and closes its send queue. It reports whether
// the client was registered; repeated calls are no-ops.
func (h *Hub) Unregister(client *Client) bool {
	return h.UnregisterID(client.ID)
}

// UnregisterID is Unregister by connection id.
func (h *Hub) UnregisterID(connectionID string) bool {
	h.mu.Lock()
	client, ok := h.clients[connectionID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, connectionID)
	if conns, ok := h.users[client.UserID]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(h.users, client.UserID)
		}
	}
	close(client.Send)
	hook := h.onUnregister
	if hook != nil {
		h.hooks.Add(1)
	}
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, connectionID).Str(log.FieldUserID, client.UserID).Msg("client unregistered")

	if hook != nil {
		defer h.hooks.Done()
		hook(client)
	}
	return true
}

// ConnectionsFor returns the live connection ids of userID. The result is
// empty, never nil, for a user without connections.
func (h *Hub) ConnectionsFor(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.users[userID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// Send queues payload on one connection without blocking. A client whose
// queue is full is treated as stalled and dropped.
func (h *Hub) Send(connectionID string, payload []byte) error {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	if !ok {
		h.mu.RUnlock()
		return ErrConnectionNotFound
	}
	select {
	case client.Send <- payload:
		h.mu.RUnlock()
		return nil
	default:
		h.mu.RUnlock()
	}

	l := log.L()
	l.Warn().Str(log.FieldConnectionID, connectionID).Msg("send buffer full, dropping client")
	go h.drop(client)
	return ErrSendBufferFull
}

// SendToUser queues payload on every connection of userID and returns how
// many accepted it.
func (h *Hub) SendToUser(userID string, payload []byte) int {
	sent := 0
	for _, id := range h.ConnectionsFor(userID) {
		if err := h.Send(id, payload); err == nil {
			sent++
		}
	}
	return sent
}

// Get returns the client registered under connectionID.
func (h *Hub) Get(connectionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connectionID]
	return c, ok
}

// Clients returns a snapshot of the registered clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close refuses new registrations and drops every live connection. It
// returns once every unregister hook, including those started by pumps that
// exited on their own, has returned.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, c := range h.Clients() {
		h.drop(c)
	}
	h.hooks.Wait()
}

func (h *Hub) drop(client *Client) {
	h.Unregister(client)
	client.Terminate()
}
