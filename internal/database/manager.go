package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	dbconfig "groupchat/pkg/database"
	"groupchat/pkg/interfaces"
	"groupchat/pkg/types"
)

const defaultWriteTimeout = 30 * time.Second

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

// Manager implements interfaces.DatabaseManager on SQLite. All writes go
// through a single goroutine; reads use the pool directly.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       zerolog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	stopped      chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

var _ interfaces.DatabaseManager = (*Manager)(nil)

// NewManager opens the database, applies pending migrations and starts the
// writer goroutine.
func NewManager(config *dbconfig.Config, logger zerolog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewMigrationManager(db, dbconfig.MigrationsFor(config))
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With().Str("component", "database").Logger(),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	manager.logger.Info().Str("path", config.DatabasePath).Msg("database ready")
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine. Failures
// are returned to the caller as-is. Operations queued before shutdown are
// still executed.
func (m *Manager) writeLoop() {
	defer m.wg.Done()
	defer close(m.stopped)

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn().Err(err).Msg("database write failed")
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug().Msg("write loop shutting down")
			for {
				select {
				case op := <-m.writeChannel:
					op.result <- op.operation(m.db)
				default:
					return
				}
			}
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timeout := m.config.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		select {
		case err := <-result:
			return err
		default:
			return ErrManagerClosed
		}
	}
}

// Append stores a chat message and returns it with ID and CreatedAt set.
func (m *Manager) Append(ctx context.Context, msg types.Message) (types.Message, error) {
	msg.CreatedAt = time.Now().UTC()

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO messages (username, content, image, is_sticker, created_at) VALUES (?, ?, ?, ?, ?)`,
			msg.Username,
			msg.Text,
			sql.NullString{String: msg.Image, Valid: msg.Image != ""},
			msg.IsSticker,
			msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		msg.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return types.Message{}, err
	}
	return msg, nil
}

// ReadLast returns up to n messages, newest first.
func (m *Manager) ReadLast(ctx context.Context, n int) ([]types.Message, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, username, content, image, is_sticker, created_at
		FROM messages
		ORDER BY id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]types.Message, 0, n)
	for rows.Next() {
		var (
			msg   types.Message
			image sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.Username, &msg.Text, &image, &msg.IsSticker, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Image = image.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// CreateUser inserts an account. Duplicate names yield interfaces.ErrUsernameTaken.
func (m *Manager) CreateUser(ctx context.Context, username, passwordHash string) (types.User, error) {
	user := types.User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO users (username, hashed_password, created_at) VALUES (?, ?, ?)`,
			user.Username, user.PasswordHash, user.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return interfaces.ErrUsernameTaken
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		user.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

// GetUserByUsername looks up an account by name.
func (m *Manager) GetUserByUsername(ctx context.Context, username string) (types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx,
		`SELECT id, username, hashed_password, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, interfaces.ErrUserNotFound
		}
		return types.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying connection pool.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the pool. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
