package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"groupchat/internal/session"
)

// Handler upgrades chat requests and runs one session per connection.
type Handler struct {
	sessions *session.Manager
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a handler that hands upgraded connections to sessions.
func NewHandler(sessions *session.Manager, opts Options, logger zerolog.Logger) *Handler {
	h := &Handler{
		sessions: sessions,
		opts:     opts,
		logger:   logger.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(h.opts.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeHTTP upgrades the request and blocks until the session ends. The
// credential is checked after the upgrade so rejections arrive as close
// codes the client can read.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential := CredentialFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	wsConn := NewConnection(conn, h.opts, h.logger)
	s, err := h.sessions.Run(r.Context(), wsConn, credential)
	if err != nil {
		h.logger.Error().Err(err).Msg("session failed to start")
		_ = conn.Close()
		return
	}
	h.logger.Debug().Str("conn_id", wsConn.ID()).Str("identity", s.Identity()).Msg("session finished")
}

// CredentialFromRequest finds the token in the path (/ws/{token}), the
// token query parameter or a bearer Authorization header, in that order.
func CredentialFromRequest(r *http.Request) string {
	if token := r.PathValue("token"); token != "" {
		return token
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}
