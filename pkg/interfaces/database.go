package interfaces

import (
	"context"

	"groupchat/pkg/types"
)

// HistoryStore persists chat messages.
type HistoryStore interface {
	// Append stores msg and returns it with ID and CreatedAt assigned.
	Append(ctx context.Context, msg types.Message) (types.Message, error)

	// ReadLast returns up to n messages, newest first.
	ReadLast(ctx context.Context, n int) ([]types.Message, error)
}

// UserStore persists registered accounts.
type UserStore interface {
	// CreateUser returns ErrUsernameTaken when the name already exists.
	CreateUser(ctx context.Context, username, passwordHash string) (types.User, error)

	// GetUserByUsername returns ErrUserNotFound for unknown names.
	GetUserByUsername(ctx context.Context, username string) (types.User, error)
}

// DatabaseManager is the full persistence surface owned by the application.
type DatabaseManager interface {
	HistoryStore
	UserStore

	HealthCheck(ctx context.Context) error
	Close() error
}
