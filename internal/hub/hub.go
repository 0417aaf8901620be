// Package hub holds the shared chat state: who is connected, how payloads
// reach them, and how the whole room is torn down on shutdown.
package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Hub bundles the registry with the broadcaster and shutdown coordinator
// built over it. One Hub serves the whole process.
type Hub struct {
	Registry    *Registry
	Broadcaster *Broadcaster
	Coordinator *Coordinator
}

// New creates a hub whose broadcaster uses deliveryTimeout per send.
func New(deliveryTimeout time.Duration, logger zerolog.Logger) *Hub {
	registry := NewRegistry()
	return &Hub{
		Registry:    registry,
		Broadcaster: NewBroadcaster(registry, deliveryTimeout, logger),
		Coordinator: NewCoordinator(registry, logger),
	}
}

// Shutdown closes every client and waits for their sessions to finish or
// for ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.Coordinator.InitiateShutdown(); err != nil {
		return err
	}
	return h.Coordinator.Wait(ctx)
}
