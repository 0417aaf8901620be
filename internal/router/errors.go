package router

import "errors"

var (
	ErrUnknownFrameType  = errors.New("unknown frame type")
	ErrRateLimitExceeded = errors.New("rate limit exceeded, slow down")
)
