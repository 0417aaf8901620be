package websocket

import "errors"

var (
	ErrWriteTimeout = errors.New("write timeout")
)
