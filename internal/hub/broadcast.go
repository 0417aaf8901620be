package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"groupchat/pkg/interfaces"
	"groupchat/pkg/types"
)

// DefaultDeliveryTimeout bounds each individual send during a fan-out.
const DefaultDeliveryTimeout = 5 * time.Second

// Broadcaster fans payloads out to registry snapshots. Connections that fail
// a delivery are closed and unregistered after the sweep, and the remaining
// clients are told who left. Those follow-up notices go through the same
// loop, so cascading failures are cleaned up iteratively.
type Broadcaster struct {
	registry *Registry
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewBroadcaster creates a broadcaster over registry. A non-positive timeout
// selects DefaultDeliveryTimeout.
func NewBroadcaster(registry *Registry, timeout time.Duration, logger zerolog.Logger) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Broadcaster{
		registry: registry,
		timeout:  timeout,
		logger:   logger.With().Str("component", "broadcaster").Logger(),
	}
}

type delivery struct {
	payload []byte
	except  string // identity to skip, "" for everyone
}

// Broadcast delivers payload to every live connection.
func (b *Broadcaster) Broadcast(ctx context.Context, payload []byte) {
	b.fanOut(ctx, delivery{payload: payload})
}

// BroadcastExcept delivers payload to every connection not owned by identity.
func (b *Broadcaster) BroadcastExcept(ctx context.Context, payload []byte, identity string) {
	b.fanOut(ctx, delivery{payload: payload, except: identity})
}

// BroadcastPresence sends the current online list to everyone.
func (b *Broadcaster) BroadcastPresence(ctx context.Context) {
	b.Broadcast(ctx, types.EncodeOnlineUsers(b.registry.OnlineIdentities()))
}

// BroadcastTyping sends the current typing list to everyone except typer.
func (b *Broadcaster) BroadcastTyping(ctx context.Context, typer string) {
	b.BroadcastExcept(ctx, types.EncodeTyping(b.registry.TypingIdentities()), typer)
}

// SendTo delivers payload to a single connection within the delivery timeout.
// It leaves cleanup of a failed connection to the caller.
func (b *Broadcaster) SendTo(ctx context.Context, conn interfaces.Connection, payload []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return conn.Send(sendCtx, payload)
}

func (b *Broadcaster) fanOut(ctx context.Context, first delivery) {
	queue := []delivery{first}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		departed := 0
		for _, conn := range b.sweep(ctx, next) {
			_ = conn.Close(interfaces.CloseNormal, "delivery failed")
			identity, ok := b.registry.Unregister(conn)
			if !ok {
				continue
			}
			departed++
			b.logger.Info().Str("identity", identity).Str("conn_id", conn.ID()).Msg("dropped unreachable connection")
			queue = append(queue, delivery{payload: types.EncodeNotice(types.LeftNotice(identity))})
		}

		if departed > 0 {
			queue = append(queue, delivery{payload: types.EncodeOnlineUsers(b.registry.OnlineIdentities())})
		}
	}
}

// sweep sends one delivery to a snapshot and returns the connections that
// failed. A cancelled ctx stops the sweep without blaming anyone.
func (b *Broadcaster) sweep(ctx context.Context, d delivery) []interfaces.Connection {
	var targets []interfaces.Connection
	if d.except != "" {
		targets = b.registry.SnapshotExcept(d.except)
	} else {
		targets = b.registry.Snapshot()
	}

	var failed []interfaces.Connection
	for _, conn := range targets {
		if ctx.Err() != nil {
			return failed
		}
		err := b.SendTo(ctx, conn, d.payload)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return failed
		}
		b.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("delivery failed")
		failed = append(failed, conn)
	}
	return failed
}
