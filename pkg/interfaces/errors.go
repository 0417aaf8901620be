package interfaces

import "errors"

// Errors shared across component boundaries.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrPeerClosed        = errors.New("peer closed connection")
	ErrUnsupportedFrame  = errors.New("binary frames are not supported")
)
