package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/samber/lo/mutable"

	"groupchat/internal/router"
	"groupchat/pkg/interfaces"
	"groupchat/pkg/types"
)

// Session is one client connection's lifecycle. Only the goroutine running
// it reads from the stream.
type Session struct {
	m        *Manager
	stream   interfaces.Stream
	identity string
	state    atomic.Int32
	drain    sync.Once
	logger   zerolog.Logger
}

func newSession(m *Manager, stream interfaces.Stream) *Session {
	s := &Session{
		m:      m,
		stream: stream,
		logger: m.logger.With().Str("conn_id", stream.ID()).Logger(),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Identity returns the authenticated identity, or "" before authentication.
func (s *Session) Identity() string {
	return s.identity
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Session) run(ctx context.Context, credential string) {
	if s.m.hub.Coordinator.ShuttingDown() {
		s.reject(interfaces.CloseGoingAway, reasonShuttingDown)
		return
	}

	s.setState(StateAuthenticating)
	identity, err := s.m.auth.Verify(ctx, credential)
	if err != nil {
		s.logger.Info().Err(err).Msg("rejected connection")
		s.reject(interfaces.ClosePolicyViolation, reasonInvalidCred)
		return
	}
	s.identity = identity
	s.logger = s.logger.With().Str("identity", identity).Logger()

	if err := s.m.hub.Registry.Register(s.stream, identity); err != nil {
		s.logger.Info().Err(err).Msg("registration refused")
		s.reject(interfaces.CloseGoingAway, reasonShuttingDown)
		return
	}

	s.setState(StateActive)
	s.logger.Info().Msg("client connected")

	s.replayHistory(ctx)
	s.m.hub.Broadcaster.Broadcast(ctx, types.EncodeNotice(types.JoinedNotice(identity)))
	s.m.hub.Broadcaster.BroadcastPresence(ctx)

	code, reason := s.readLoop(ctx)
	s.Drain(ctx, code, reason)
}

// replayHistory sends the most recent messages, oldest first, to this
// client only. A message that cannot be delivered is skipped.
func (s *Session) replayHistory(ctx context.Context) {
	if s.m.config.HistoryLimit == 0 {
		return
	}

	messages, err := s.m.history.ReadLast(ctx, s.m.config.HistoryLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("history read failed")
		s.reply(ctx, types.EncodeError(msgHistoryFailed))
		return
	}

	mutable.Reverse(messages)
	for _, msg := range messages {
		if err := s.m.hub.Broadcaster.SendTo(ctx, s.stream, types.EncodeMessage(msg)); err != nil {
			s.logger.Warn().Err(err).Int64("message_id", msg.ID).Msg("history replay skipped message")
		}
	}
}

// readLoop dispatches frames until the stream ends and returns the close
// code and reason to send.
func (s *Session) readLoop(ctx context.Context) (int, string) {
	for {
		if s.m.hub.Coordinator.ShuttingDown() {
			return interfaces.CloseGoingAway, reasonShuttingDown
		}

		raw, err := s.stream.Receive()
		if err != nil {
			switch {
			case errors.Is(err, interfaces.ErrPeerClosed):
				s.logger.Debug().Msg("client closed connection")
				return interfaces.CloseNormal, ""
			case errors.Is(err, interfaces.ErrUnsupportedFrame):
				return interfaces.CloseUnsupportedData, reasonBinaryFrame
			default:
				s.logger.Debug().Err(err).Msg("receive failed")
				return interfaces.CloseNormal, reasonReceiveFailed
			}
		}

		s.dispatch(ctx, raw)
	}
}

func (s *Session) dispatch(ctx context.Context, raw []byte) {
	frame, err := s.m.router.Decode(raw)
	if err != nil {
		s.reply(ctx, types.EncodeError(err.Error()))
		return
	}

	switch frame.Type {
	case types.FrameTypePing:
		s.reply(ctx, types.EncodePong())
	case types.FrameTypePong:
	case types.FrameTypeTyping:
		s.m.hub.Registry.SetTyping(s.identity, frame.IsTyping())
		s.m.hub.Broadcaster.BroadcastTyping(ctx, s.identity)
	case types.FrameTypeMessage:
		s.postMessage(ctx, frame)
	}
}

// postMessage validates, persists and then broadcasts one chat message.
// Nothing is broadcast unless the store accepted it.
func (s *Session) postMessage(ctx context.Context, frame types.InboundFrame) {
	text, image, err := types.ValidateContent(frame.Message, frame.Image, s.m.config.Limits)
	if err != nil {
		s.reply(ctx, types.EncodeError(err.Error()))
		return
	}

	// Rejected content does not count against the budget.
	if !s.m.router.Allow(s.identity) {
		s.reply(ctx, types.EncodeError(router.ErrRateLimitExceeded.Error()))
		return
	}

	stored, err := s.m.history.Append(ctx, types.Message{
		Username:  s.identity,
		Text:      text,
		Image:     image,
		IsSticker: frame.IsSticker,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("message append failed")
		s.reply(ctx, types.EncodeError(msgSaveFailed))
		return
	}

	s.m.hub.Registry.SetTyping(s.identity, false)
	s.m.hub.Broadcaster.BroadcastTyping(ctx, s.identity)
	s.m.hub.Broadcaster.Broadcast(ctx, types.EncodeMessage(stored))
}

// reply sends a frame to this client only. A failed reply is left for the
// read loop to discover.
func (s *Session) reply(ctx context.Context, payload []byte) {
	if err := s.m.hub.Broadcaster.SendTo(ctx, s.stream, payload); err != nil {
		s.logger.Debug().Err(err).Msg("reply failed")
	}
}

// Drain unregisters the connection, tells the room who left and closes the
// stream with code. Nothing is announced once shutdown has begun. Only the
// first call has any effect.
func (s *Session) Drain(ctx context.Context, code int, reason string) {
	s.drain.Do(func() {
		s.setState(StateDraining)
		identity, ok := s.m.hub.Registry.Unregister(s.stream)
		if ok {
			s.logger.Info().Msg("client disconnected")
		}
		if ok && !s.m.hub.Coordinator.ShuttingDown() {
			s.m.hub.Broadcaster.Broadcast(ctx, types.EncodeNotice(types.LeftNotice(identity)))
			s.m.hub.Broadcaster.BroadcastPresence(ctx)
		}
		if err := s.stream.Close(code, reason); err != nil {
			s.logger.Debug().Err(err).Msg("close failed")
		}
		s.setState(StateClosed)
	})
}

// reject ends a session that never became active.
func (s *Session) reject(code int, reason string) {
	s.Drain(context.Background(), code, reason)
}
