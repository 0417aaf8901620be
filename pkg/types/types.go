package types

import (
	"time"
)

// Frame types exchanged over the chat socket.
const (
	FrameTypePing        = "ping"
	FrameTypePong        = "pong"
	FrameTypeTyping      = "typing"
	FrameTypeMessage     = "message"
	FrameTypeOnlineUsers = "online_users"
	FrameTypeError       = "error"
)

// Message is one persisted chat message.
type Message struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Text      string    `json:"message" db:"content"`
	Image     string    `json:"image,omitempty" db:"image"`
	IsSticker bool      `json:"isSticker,omitempty" db:"is_sticker"`
	CreatedAt time.Time `json:"timestamp" db:"created_at"`
}

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"hashed_password"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// InboundFrame is any JSON frame a client may send. Fields irrelevant to
// Type are ignored.
type InboundFrame struct {
	Type      string `json:"type"`
	Typing    *bool  `json:"typing,omitempty"`
	Message   string `json:"message,omitempty"`
	Image     string `json:"image,omitempty"`
	IsSticker bool   `json:"isSticker,omitempty"`
}

// IsTyping reports the typing flag; a typing frame without one means true.
func (f InboundFrame) IsTyping() bool {
	if f.Typing == nil {
		return true
	}
	return *f.Typing
}

// MessageFrame carries one chat message to clients, live or replayed.
type MessageFrame struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id,omitempty"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Image     string    `json:"image,omitempty"`
	IsSticker bool      `json:"isSticker,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UsersFrame lists identities, for presence and typing updates.
type UsersFrame struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// ErrorFrame reports a rejected client action without closing the session.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongFrame answers an application-level ping.
type PongFrame struct {
	Type string `json:"type"`
}
