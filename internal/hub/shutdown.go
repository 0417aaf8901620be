package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"groupchat/pkg/interfaces"
)

const shutdownReason = "server shutting down"

// Coordinator runs the shutdown sequence once and lets the process wait for
// session goroutines to finish.
type Coordinator struct {
	registry *Registry
	logger   zerolog.Logger

	mu     sync.Mutex
	active int
	idle   chan struct{}
	once   sync.Once
}

// NewCoordinator creates a coordinator over registry.
func NewCoordinator(registry *Registry, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		logger:   logger.With().Str("component", "shutdown").Logger(),
	}
}

// ShuttingDown reports whether shutdown has begun.
func (c *Coordinator) ShuttingDown() bool {
	return c.registry.Sealed()
}

// Track counts a running session. The returned release must be called when
// the session ends; extra calls are ignored.
func (c *Coordinator) Track() (release func()) {
	c.mu.Lock()
	c.active++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.active--
			if c.active == 0 && c.idle != nil {
				close(c.idle)
				c.idle = nil
			}
		})
	}
}

// ActiveSessions returns the number of tracked sessions.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// InitiateShutdown seals the registry, closes every live connection with
// CloseGoingAway and clears the registry. Close errors are logged and
// skipped. Calls after the first return ErrShutdownInProgress.
func (c *Coordinator) InitiateShutdown() error {
	err := ErrShutdownInProgress
	c.once.Do(func() {
		err = nil
		conns := c.registry.Seal()
		c.logger.Info().Int("connections", len(conns)).Msg("closing client connections")

		for _, conn := range conns {
			if closeErr := conn.Close(interfaces.CloseGoingAway, shutdownReason); closeErr != nil {
				c.logger.Debug().Err(closeErr).Str("conn_id", conn.ID()).Msg("close failed during shutdown")
			}
		}

		c.registry.Clear()
	})
	return err
}

// Wait blocks until every tracked session has released or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	if c.active == 0 {
		c.mu.Unlock()
		return nil
	}
	if c.idle == nil {
		c.idle = make(chan struct{})
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
