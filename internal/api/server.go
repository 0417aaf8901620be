// Package api serves the account endpoints, presence and health checks,
// and mounts the chat WebSocket handler.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"groupchat/internal/auth"
	"groupchat/pkg/interfaces"
)

// Accounts registers users and issues tokens.
type Accounts interface {
	Register(ctx context.Context, creds auth.Credentials) error
	Login(ctx context.Context, creds auth.Credentials) (string, error)
}

// Presence exposes the live chat state.
type Presence interface {
	OnlineIdentities() []string
	TypingIdentities() []string
	GetStats() map[string]int
}

// HealthChecker reports whether storage is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server routes HTTP requests. It holds no chat logic of its own.
type Server struct {
	accounts       Accounts
	db             HealthChecker
	presence       Presence
	chat           http.Handler
	allowedOrigins []string
	router         *http.ServeMux
	handler        http.Handler
	started        time.Time
	logger         zerolog.Logger
}

// Options configures optional server behaviour.
type Options struct {
	// AllowedOrigins limits CORS to these origins. Empty allows any.
	AllowedOrigins []string
}

// NewServer wires the routes. chat serves /ws/{token} and /ws.
func NewServer(accounts Accounts, db HealthChecker, presence Presence, chat http.Handler, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		accounts:       accounts,
		db:             db,
		presence:       presence,
		chat:           chat,
		allowedOrigins: opts.AllowedOrigins,
		router:         http.NewServeMux(),
		started:        time.Now(),
		logger:         logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	s.handler = s.corsMiddleware(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("POST /auth/register", s.jsonMiddleware(http.HandlerFunc(s.register)))
	s.router.Handle("POST /auth/login", s.jsonMiddleware(http.HandlerFunc(s.login)))
	s.router.Handle("GET /api/presence", s.jsonMiddleware(http.HandlerFunc(s.getPresence)))
	s.router.Handle("GET /health", s.jsonMiddleware(http.HandlerFunc(s.healthCheck)))

	if s.chat != nil {
		s.router.Handle("GET /ws/{token}", s.chat)
		s.router.Handle("GET /ws", s.chat)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type MessageResponse struct {
	Message string `json:"message"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type PresenceResponse struct {
	Online []string `json:"online"`
	Typing []string `json:"typing"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	System      map[string]any `json:"system"`
}

// ErrorResponse carries the failure reason in detail, where browser
// clients look for it.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Detail string `json:"detail"`
}

// POST /auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(w, r)
	if err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err = s.accounts.Register(r.Context(), creds)
	var verr *auth.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		s.sendError(w, verr.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, interfaces.ErrUsernameTaken):
		s.sendError(w, "Username already taken", http.StatusBadRequest)
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		s.sendError(w, auth.ErrPasswordTooLong.Error(), http.StatusBadRequest)
		return
	default:
		s.logger.Error().Err(err).Str("username", creds.Username).Msg("registration failed")
		s.sendError(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, MessageResponse{Message: "User registered successfully"})
}

// POST /auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(w, r)
	if err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.accounts.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		s.logger.Error().Err(err).Str("username", creds.Username).Msg("login failed")
		s.sendError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// readCredentials accepts a JSON body or username/password query and form
// parameters.
func readCredentials(w http.ResponseWriter, r *http.Request) (auth.Credentials, error) {
	var creds auth.Credentials

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" && r.ContentLength != 0 {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&creds)
		if err != nil && !errors.Is(err, io.EOF) {
			return creds, fmt.Errorf("decode credentials: %w", err)
		}
	}

	if creds.Username == "" && creds.Password == "" {
		creds.Username = r.FormValue("username")
		creds.Password = r.FormValue("password")
	}
	return creds, nil
}

// GET /api/presence
func (s *Server) getPresence(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, PresenceResponse{
		Online: s.presence.OnlineIdentities(),
		Typing: s.presence.TypingIdentities(),
	})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.db.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.presence.GetStats(),
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("response write failed")
	}
}

func (s *Server) sendError(w http.ResponseWriter, detail string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:  http.StatusText(code),
		Code:   code,
		Detail: detail,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.allowedOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case lo.Contains(s.allowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
