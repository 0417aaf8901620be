package auth

import "errors"

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrWeakSecret         = errors.New("signing secret must be at least 32 bytes")
)
