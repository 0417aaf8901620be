// Package session drives one client connection from handshake to close.
package session

import (
	"context"

	"github.com/rs/zerolog"

	"groupchat/internal/hub"
	"groupchat/internal/router"
	"groupchat/pkg/interfaces"
	"groupchat/pkg/types"
)

const DefaultHistoryLimit = 50

// Config tunes session behaviour.
type Config struct {
	HistoryLimit int
	Limits       types.Limits
}

// DefaultConfig returns the production session settings.
func DefaultConfig() Config {
	return Config{
		HistoryLimit: DefaultHistoryLimit,
		Limits:       types.DefaultLimits(),
	}
}

// Manager holds what every session shares and starts new sessions.
type Manager struct {
	auth    interfaces.Authenticator
	history interfaces.HistoryStore
	hub     *hub.Hub
	router  *router.Router
	config  Config
	logger  zerolog.Logger
}

// NewManager wires the shared session dependencies.
func NewManager(
	auth interfaces.Authenticator,
	history interfaces.HistoryStore,
	h *hub.Hub,
	r *router.Router,
	config Config,
	logger zerolog.Logger,
) *Manager {
	if config.HistoryLimit < 0 {
		config.HistoryLimit = 0
	}
	if r == nil {
		r = router.NewRouter(nil)
	}
	return &Manager{
		auth:    auth,
		history: history,
		hub:     h,
		router:  r,
		config:  config,
		logger:  logger.With().Str("component", "session").Logger(),
	}
}

// Run serves stream until the client leaves or the server shuts down. It
// blocks for the whole session and returns the finished session.
func (m *Manager) Run(ctx context.Context, stream interfaces.Stream, credential string) (*Session, error) {
	if stream == nil {
		return nil, ErrNilStream
	}

	release := m.hub.Coordinator.Track()
	defer release()

	s := newSession(m, stream)
	s.run(ctx, credential)
	return s, nil
}
