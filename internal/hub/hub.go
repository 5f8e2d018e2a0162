// Package hub tracks attached clients and fans events out to all of them.
package hub

import (
	"sync"

	"github.com/rs/zerolog"
)

// Client is one attached connection the hub can push events to.
type Client interface {
	// ID is a process-unique connection identifier.
	ID() string
	// Send delivers one event. An error marks the client dead.
	Send(event any) error
}

// Hub is the connection registry and broadcast fan-out. A send failure on one
// client removes that client without affecting delivery to the others.
type Hub struct {
	mu      sync.Mutex
	clients map[string]Client
	log     zerolog.Logger
}

// New builds an empty hub.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]Client),
		log:     log.With().Str("component", "hub").Logger(),
	}
}

// Register adds a client. Registering an already-present client is a no-op.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID()]; ok {
		return
	}
	h.clients[c.ID()] = c
	h.log.Info().Str("conn_id", c.ID()).Int("total", len(h.clients)).Msg("client connected")
}

// Unregister removes a client. Removing an absent client is a no-op.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID()]; !ok {
		return
	}
	delete(h.clients, c.ID())
	h.log.Info().Str("conn_id", c.ID()).Int("total", len(h.clients)).Msg("client disconnected")
}

// Count returns the number of attached clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast delivers event to every registered client. Clients whose send
// fails are dropped from the registry; one dead client cannot suppress
// delivery to live ones.
func (h *Hub) Broadcast(event any) {
	h.mu.Lock()
	targets := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var dead []Client
	for _, c := range targets {
		if err := c.Send(event); err != nil {
			h.log.Warn().Err(err).Str("conn_id", c.ID()).Msg("broadcast delivery failed, dropping client")
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.Unregister(c)
	}
}
