package hub

import "errors"

var (
	ErrNilConnection      = errors.New("connection cannot be nil")
	ErrEmptyIdentity      = errors.New("identity cannot be empty")
	ErrAlreadyRegistered  = errors.New("connection is already registered")
	ErrShuttingDown       = errors.New("server is shutting down")
	ErrShutdownInProgress = errors.New("shutdown already initiated")
)
