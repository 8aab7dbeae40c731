package notifybus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
)

const clientBufferSize = 16

// Client is one open notification stream of a user.
type Client struct {
	ID       string
	UserID   string
	Outbound chan notification.Notification

	done     chan struct{}
	doneOnce sync.Once
}

// Done is closed when the client is unsubscribed or the hub is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() { c.doneOnce.Do(func() { close(c.done) }) }

// Hub fans notifications out to the streams of their recipient.
// Slow clients lose messages instead of blocking delivery.
type Hub struct {
	mu     sync.RWMutex
	logger core.Logger
	subs   map[string]map[*Client]struct{} // {userID: clients}
}

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Subscribe(userID string) *Client {
	c := &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Outbound: make(chan notification.Notification, clientBufferSize),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.subs[userID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.subs[userID] = clients
	}
	clients[c] = struct{}{}
	h.logger.Debug("notification stream opened", "client_id", c.ID, "user_id", userID)
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	if clients, ok := h.subs[c.UserID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.subs, c.UserID)
		}
	}
	h.mu.Unlock()
	c.close()
	h.logger.Debug("notification stream closed", "client_id", c.ID, "user_id", c.UserID)
}

// Deliver hands n to every stream of n.UserID without blocking.
func (h *Hub) Deliver(n notification.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.subs[n.UserID] {
		select {
		case c.Outbound <- n:
		default:
			h.logger.Warn("dropping notification; outbound buffer full", "client_id", c.ID, "user_id", n.UserID)
		}
	}
}

func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close ends every open stream.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.subs {
		for c := range clients {
			c.close()
		}
		delete(h.subs, userID)
	}
}
