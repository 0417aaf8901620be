// Package app wires the chat server together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"groupchat/internal/api"
	"groupchat/internal/auth"
	"groupchat/internal/config"
	"groupchat/internal/database"
	"groupchat/internal/hub"
	"groupchat/internal/router"
	"groupchat/internal/session"
	"groupchat/internal/websocket"
	pkgdatabase "groupchat/pkg/database"
	"groupchat/pkg/types"
)

const rateLimitSweepInterval = 5 * time.Minute

// Application owns every long-lived component of the server.
type Application struct {
	config     *config.Config
	logger     zerolog.Logger
	dbManager  *database.Manager
	hub        *hub.Hub
	limiter    *router.RateLimiter
	accounts   *auth.Service
	apiServer  *api.Server
	httpServer *http.Server

	listener   net.Listener
	serveErr   chan error
	stopLimits context.CancelFunc
	stopOnce   sync.Once
	stopErr    error
}

// NewApplication builds the components in dependency order:
// database, auth, hub, router, sessions, websocket, api, http.
func NewApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbManager, err := database.NewManager(databaseConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}
	accounts := auth.NewService(dbManager, auth.NewPasswordHasher(cfg.Auth.BcryptCost), tokens, logger)

	chatHub := hub.New(cfg.WebSocket.DeliveryTimeout, logger)
	limiter := router.NewRateLimiter(cfg.Chat.RateLimit, time.Minute)

	sessions := session.NewManager(accounts, dbManager, chatHub, router.NewRouter(limiter), session.Config{
		HistoryLimit: cfg.Chat.HistoryLimit,
		Limits: types.Limits{
			MaxTextLength: cfg.Chat.MaxTextLength,
			MaxImageBytes: cfg.Chat.MaxImageBytes,
		},
	}, logger)

	wsHandler := websocket.NewHandler(sessions, connectionOptions(cfg), logger)

	apiServer := api.NewServer(accounts, dbManager, chatHub.Registry, wsHandler, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger.With().Str("component", "app").Logger(),
		dbManager:  dbManager,
		hub:        chatHub,
		limiter:    limiter,
		accounts:   accounts,
		apiServer:  apiServer,
		httpServer: httpServer,
		serveErr:   make(chan error, 1),
	}, nil
}

func databaseConfig(cfg *config.Config) *pkgdatabase.Config {
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.WriteTimeout = cfg.Database.Timeout
	return dbConfig
}

func connectionOptions(cfg *config.Config) websocket.Options {
	return websocket.Options{
		SendBuffer:     cfg.WebSocket.BufferSize,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		PongWait:       cfg.WebSocket.PongWait,
		PingInterval:   cfg.WebSocket.PingInterval,
		MaxFrameBytes:  cfg.WebSocket.MaxFrameBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
}

// Start binds the listener and serves in the background. Serve failures
// after Start returns are reported on Errors.
func (app *Application) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	limiterCtx, cancel := context.WithCancel(context.Background())
	app.stopLimits = cancel
	go app.limiter.Run(limiterCtx, rateLimitSweepInterval)

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.serveErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	app.logger.Info().Str("addr", listener.Addr().String()).Msg("groupchat listening")
	return nil
}

// Errors reports a failure of the HTTP server after Start.
func (app *Application) Errors() <-chan error {
	return app.serveErr
}

// Stop closes every chat connection with "going away", waits for the
// sessions to finish, then stops HTTP and closes the database. It is safe
// to call more than once.
func (app *Application) Stop(ctx context.Context) error {
	app.stopOnce.Do(func() {
		app.logger.Info().Int("sessions", app.hub.Coordinator.ActiveSessions()).Msg("shutting down")

		var errs []error
		if err := app.hub.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("chat shutdown: %w", err))
		}
		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if app.stopLimits != nil {
			app.stopLimits()
		}
		if err := app.dbManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}

		app.stopErr = errors.Join(errs...)
		if app.stopErr != nil {
			app.logger.Error().Err(app.stopErr).Msg("shutdown finished with errors")
		} else {
			app.logger.Info().Msg("shutdown complete")
		}
	})
	return app.stopErr
}

// Addr returns the bound address once started, else the configured one.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the routed HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Accounts exposes account registration and login.
func (app *Application) Accounts() *auth.Service {
	return app.accounts
}

// Hub exposes the live chat state.
func (app *Application) Hub() *hub.Hub {
	return app.hub
}
