// Package realtime streams applied catalog events to websocket
// watchers. A hub tracks the connected clients and fans events out;
// each client carries the filter it connected with. Delivery is best
// effort: a client that cannot keep up loses events rather than
// stalling the rest.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"offerdex/pkg/model"
)

// Filter limits which catalog events a watch client receives. The zero
// filter passes everything.
type Filter struct {
	Provider *model.ProviderPubkey
	Types    map[model.EventType]bool
}

func (f Filter) match(ev model.CatalogEvent) bool {
	if f.Provider != nil && *f.Provider != ev.Provider {
		return false
	}
	if len(f.Types) > 0 && !f.Types[ev.Type] {
		return false
	}
	return true
}

// Hub maintains the set of active watch clients and broadcasts catalog
// events to them.
type Hub struct {
	logger *slog.Logger

	// Registered clients.
	clients map[*Client]bool

	// Inbound events to fan out.
	broadcast chan model.CatalogEvent

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	mu sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan model.CatalogEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run fans events out until ctx is canceled, then disconnects every
// remaining client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.filter.match(ev) {
					continue
				}
				select {
				case client.send <- ev:
				default:
					// The client's buffer is full. It loses this
					// event; closing it here would punish a browser
					// tab for a short GC pause.
					h.logger.Debug("Dropping event for slow watch client",
						"type", ev.Type, "provider", ev.Provider.Short())
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast hands one event to the fan-out loop. It blocks until Run
// picks it up, so it must not be called after Run has returned.
func (h *Hub) Broadcast(ev model.CatalogEvent) {
	h.broadcast <- ev
}

// ClientCount reports how many watch clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
