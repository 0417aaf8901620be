package interfaces

import "context"

// Close codes sent to clients when the server ends a session.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseUnsupportedData = 1003
	ClosePolicyViolation = 1008
)

// Connection is one live client channel as seen by the registry and the
// broadcaster. Implementations must be safe for concurrent Send and Close
// and must be usable as map keys.
type Connection interface {
	// ID is stable for the lifetime of the connection and used only for logs.
	ID() string

	// Send queues one text frame. It returns ctx.Err() if ctx ends first and
	// ErrConnectionClosed once the connection is gone.
	Send(ctx context.Context, payload []byte) error

	// Close sends a close frame with code and reason, then releases the
	// transport. Calling Close more than once is a no-op.
	Close(code int, reason string) error
}

// Stream is a Connection that its owning session also reads from.
type Stream interface {
	Connection

	// Receive blocks for the next text frame. It returns an error wrapping
	// ErrPeerClosed when the client closed cleanly and ErrUnsupportedFrame
	// for binary frames. Close unblocks a pending Receive.
	Receive() ([]byte, error)
}
