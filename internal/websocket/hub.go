package websocket

import (
	"sync"
	"sync/atomic"

	"github.com/isdelr/chirp-be/internal/metrics"
	"github.com/rs/zerolog/log"
)

// delivery targets every connection of userID, or only client when set.
type delivery struct {
	userID  string
	client  *Client
	message []byte
}

// Hub maintains the set of active clients and routes messages to the
// connections of a given user. A user may hold several connections. Only the
// Run goroutine writes to or closes a client's Send channel.
type Hub struct {
	// Connected clients, grouped by user ID.
	users map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}
	stopped    chan struct{}
	started    atomic.Bool
	stop       sync.Once
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		users:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	h.started.Store(true)
	defer close(h.stopped)

	for {
		select {
		case <-h.done:
			closed := 0
			for _, clients := range h.users {
				for client := range clients {
					close(client.Send)
					closed++
				}
			}
			h.users = make(map[string]map[*Client]bool)
			metrics.WebsocketConnected(-closed)
			return
		case client := <-h.register:
			if h.users[client.UserID] == nil {
				h.users[client.UserID] = make(map[*Client]bool)
			}
			h.users[client.UserID][client] = true
			metrics.WebsocketConnected(1)
			log.Info().Str("user_id", client.UserID).Int("user_connections", len(h.users[client.UserID])).Msg("Client connected")
		case client := <-h.unregister:
			if h.remove(client) {
				log.Info().Str("user_id", client.UserID).Msg("Client disconnected")
			}
		case d := <-h.deliver:
			if d.client != nil {
				// Replies are dropped, not fatal, when the buffer is full.
				if h.users[d.client.UserID][d.client] {
					select {
					case d.client.Send <- d.message:
					default:
					}
				}
				continue
			}
			for client := range h.users[d.userID] {
				select {
				case client.Send <- d.message:
				default:
					// Slow consumer; drop the connection rather than block the hub.
					log.Warn().Str("user_id", client.UserID).Msg("Client send buffer full, disconnecting")
					h.remove(client)
				}
			}
		}
	}
}

// Stop ends Run and closes every client's send channel. It waits for Run to
// return when Run was started.
func (h *Hub) Stop() {
	h.stop.Do(func() { close(h.done) })
	if h.started.Load() {
		<-h.stopped
	}
}

// Register adds a client. It is a no-op after Stop.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SendToUser queues message for every connection of userID. Users without
// connections are skipped silently.
func (h *Hub) SendToUser(userID string, message []byte) {
	select {
	case h.deliver <- delivery{userID: userID, message: message}:
	case <-h.done:
	}
}

// SendToClient queues message for one connection. Clients that are no longer
// registered are skipped.
func (h *Hub) SendToClient(client *Client, message []byte) {
	select {
	case h.deliver <- delivery{userID: client.UserID, client: client, message: message}:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) bool {
	clients, ok := h.users[client.UserID]
	if !ok || !clients[client] {
		return false
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.users, client.UserID)
	}
	close(client.Send)
	metrics.WebsocketConnected(-1)
	return true
}
