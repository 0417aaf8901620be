package types

import (
	"encoding/json"
	"fmt"
)

// JoinedNotice is the plain-text line broadcast when identity connects.
func JoinedNotice(identity string) string {
	return fmt.Sprintf("%s joined", identity)
}

// LeftNotice is the plain-text line broadcast when identity's connection ends.
func LeftNotice(identity string) string {
	return fmt.Sprintf("%s left", identity)
}

// EncodeMessage renders a stored message as a message frame.
func EncodeMessage(m Message) []byte {
	return encode(MessageFrame{
		Type:      FrameTypeMessage,
		ID:        m.ID,
		Username:  m.Username,
		Message:   m.Text,
		Image:     m.Image,
		IsSticker: m.IsSticker,
		Timestamp: m.CreatedAt,
	})
}

// EncodeOnlineUsers renders the presence list.
func EncodeOnlineUsers(users []string) []byte {
	return encode(UsersFrame{Type: FrameTypeOnlineUsers, Users: nonNil(users)})
}

// EncodeTyping renders the typing list.
func EncodeTyping(users []string) []byte {
	return encode(UsersFrame{Type: FrameTypeTyping, Users: nonNil(users)})
}

// EncodeError renders an error frame.
func EncodeError(message string) []byte {
	return encode(ErrorFrame{Type: FrameTypeError, Message: message})
}

// EncodePong renders the reply to a ping frame.
func EncodePong() []byte {
	return encode(PongFrame{Type: FrameTypePong})
}

// EncodeNotice renders a plain-text announcement. Notices are not JSON.
func EncodeNotice(text string) []byte {
	return []byte(text)
}

// encode marshals frame types made only of strings, bools, ints and times,
// which cannot fail.
func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("types: encode %T: %v", v, err))
	}
	return b
}

func nonNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
