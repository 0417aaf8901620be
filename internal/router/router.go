// Package router turns raw client frames into typed frames and decides
// whether a message may be posted.
package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"groupchat/pkg/types"
)

// Router decodes inbound frames and applies the per-identity message budget.
type Router struct {
	rateLimiter *RateLimiter
}

// NewRouter creates a router backed by limiter. A nil limiter allows
// everything.
func NewRouter(limiter *RateLimiter) *Router {
	if limiter == nil {
		limiter = NewRateLimiter(0, 0)
	}
	return &Router{rateLimiter: limiter}
}

// Decode parses one text frame. Anything that is not a JSON object with a
// type field is treated as a plain chat message carrying the raw text.
// Known types are returned as-is; other types yield ErrUnknownFrameType.
func (r *Router) Decode(raw []byte) (types.InboundFrame, error) {
	var frame types.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		return types.InboundFrame{
			Type:    types.FrameTypeMessage,
			Message: strings.ToValidUTF8(string(raw), "\uFFFD"),
		}, nil
	}

	switch frame.Type {
	case types.FrameTypePing, types.FrameTypePong, types.FrameTypeTyping, types.FrameTypeMessage:
		return frame, nil
	default:
		return frame, fmt.Errorf("%w: %q", ErrUnknownFrameType, frame.Type)
	}
}

// Allow reports whether identity may post another message now.
func (r *Router) Allow(identity string) bool {
	return r.rateLimiter.Allow(identity)
}
