package websocket

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Hub is the process-wide registry of push channels, keyed by client id.
//
// Registry mutations (attach, detach, shutdown) are serialised through the
// Run loop via channels; Broadcast and the lookups take the read lock only
// long enough to copy the target set, then send outside the lock so a slow
// client never blocks the others. A client whose send buffer is full is
// evicted and fan-out continues.
type Hub struct {
	mu sync.RWMutex

	// clients is the registry, keyed by the opaque client id assigned at
	// attach time.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	stopped chan struct{}

	log *zap.Logger
}

// NewHub creates an idle Hub. Call Run in a goroutine to start it.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		stopped:    make(chan struct{}),
		log:        log.Named("ws"),
	}
}

// Run starts the hub's event loop. It must be called exactly once, in its
// own goroutine, and exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()

			client.enqueue(NewMessage(MsgWelcome, WelcomePayload{
				ClientID:       client.ID,
				ConnectedUsers: h.ConnectedUsers(),
			}))
			h.broadcastExcept(client.ID, NewMessage(MsgUserConnected, PresencePayload{
				Username: client.Username,
				ClientID: client.ID,
			}))
			h.log.Info("client attached",
				zap.String("client_id", client.ID),
				zap.String("username", client.Username))

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.ID]
			if ok && current == client {
				delete(h.clients, client.ID)
				client.shutdown()
			}
			h.mu.Unlock()
			if ok && current == client {
				h.broadcastExcept(client.ID, NewMessage(MsgUserDisconnected, PresencePayload{
					Username: client.Username,
					ClientID: client.ID,
				}))
				h.log.Info("client detached",
					zap.String("client_id", client.ID),
					zap.String("username", client.Username))
			}

		case <-ctx.Done():
			h.mu.Lock()
			for _, client := range h.clients {
				client.shutdown()
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return
		}
	}
}

// Attach registers a client that has completed the upgrade.
func (h *Hub) Attach(client *Client) {
	h.register <- client
}

// Detach removes a client from the registry. Called by the client's
// readPump when the connection closes, and by the hub itself on eviction.
func (h *Hub) Detach(client *Client) {
	h.unregister <- client
}

// Broadcast sends msg to every connected client, the originator included.
func (h *Hub) Broadcast(msg Message) {
	h.broadcastExcept("", msg)
}

// BroadcastExcept sends msg to every client except the one with the given
// id. Used for presence events and user message relay.
func (h *Hub) BroadcastExcept(exceptClientID string, msg Message) {
	h.broadcastExcept(exceptClientID, msg)
}

func (h *Hub) broadcastExcept(exceptClientID string, msg Message) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id == exceptClientID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// NotifyChange fans out a data_changed envelope for a committed mutation.
// Safe to call from any goroutine.
func (h *Hub) NotifyChange(entity, action string, entityID any, changedBy string) {
	h.Broadcast(NewMessage(MsgDataChanged, ChangePayload{
		Entity:    entity,
		Action:    action,
		EntityID:  entityID,
		ChangedBy: changedBy,
	}))
}

// NotifyRefresh hints clients to invalidate and re-read. An empty entity
// means everything.
func (h *Hub) NotifyRefresh(entity string) {
	payload := map[string]any{}
	if entity != "" {
		payload["entity"] = entity
	}
	h.Broadcast(NewMessage(MsgRefreshRequired, payload))
}

// DisconnectUser closes every channel owned by the given normalized
// username and returns how many clients were dropped. Used by force
// disconnect and session kicks.
func (h *Hub) DisconnectUser(username string) int {
	h.mu.RLock()
	var targets []*Client
	for _, c := range h.clients {
		if c.Username == username {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.closeWithReason("session terminated")
		h.Detach(c)
	}
	return len(targets)
}

// ConnectedUsers returns the distinct usernames currently attached, sorted.
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	seen := make(map[string]struct{}, len(h.clients))
	for _, c := range h.clients {
		seen[c.Username] = struct{}{}
	}
	h.mu.RUnlock()

	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Counts returns the number of attached clients and of distinct users.
func (h *Hub) Counts() (clients, users int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{}, len(h.clients))
	for _, c := range h.clients {
		seen[c.Username] = struct{}{}
	}
	return len(h.clients), len(seen)
}
