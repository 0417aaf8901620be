package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupchat/internal/hub"
	"groupchat/internal/router"
	"groupchat/pkg/interfaces"
	"groupchat/pkg/types"
)

// recorder is a registry connection that only collects what it is sent.
type recorder struct {
	id     string
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	code   int
	reason string
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return interfaces.ErrConnectionClosed
	}
	r.sent = append(r.sent, append([]byte(nil), payload...))
	return nil
}

func (r *recorder) Close(code int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed, r.code, r.reason = true, code, reason
	}
	return nil
}

func (r *recorder) frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, p := range r.sent {
		out[i] = string(p)
	}
	return out
}

func (r *recorder) closeInfo() (bool, int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed, r.code, r.reason
}

// fakeStream feeds scripted frames to a session.
type fakeStream struct {
	recorder
	incoming chan []byte
	errs     chan error
	done     chan struct{}
	once     sync.Once
}

func newFakeStream(id string) *fakeStream {
	return &fakeStream{
		recorder: recorder{id: id},
		incoming: make(chan []byte, 16),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (f *fakeStream) Receive() ([]byte, error) {
	select {
	case raw, ok := <-f.incoming:
		if !ok {
			return nil, fmt.Errorf("%w: 1000", interfaces.ErrPeerClosed)
		}
		return raw, nil
	case err := <-f.errs:
		return nil, err
	case <-f.done:
		return nil, interfaces.ErrConnectionClosed
	}
}

func (f *fakeStream) Close(code int, reason string) error {
	f.once.Do(func() { close(f.done) })
	return f.recorder.Close(code, reason)
}

func (f *fakeStream) send(frame string) {
	f.incoming <- []byte(frame)
}

// hangUp simulates a clean client close.
func (f *fakeStream) hangUp() {
	close(f.incoming)
}

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) Verify(ctx context.Context, credential string) (string, error) {
	args := m.Called(ctx, credential)
	return args.String(0), args.Error(1)
}

type memoryStore struct {
	mu        sync.Mutex
	messages  []types.Message
	nextID    int64
	appendErr error
	readErr   error
}

func (s *memoryStore) Append(ctx context.Context, msg types.Message) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return types.Message{}, s.appendErr
	}
	s.nextID++
	msg.ID = s.nextID
	msg.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memoryStore) ReadLast(ctx context.Context, n int) ([]types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []types.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.messages[i])
	}
	return out, nil
}

func (s *memoryStore) stored() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Message(nil), s.messages...)
}

var errStoreDown = errors.New("disk full")

type testEnv struct {
	hub      *hub.Hub
	auth     *mockAuth
	store    *memoryStore
	manager  *Manager
	observer *recorder
}

func newTestEnv(t *testing.T, limiter *router.RateLimiter) *testEnv {
	t.Helper()
	env := &testEnv{
		hub:      hub.New(time.Second, zerolog.Nop()),
		auth:     &mockAuth{},
		store:    &memoryStore{},
		observer: &recorder{id: "observer"},
	}
	env.manager = NewManager(env.auth, env.store, env.hub, router.NewRouter(limiter), DefaultConfig(), zerolog.Nop())
	return env
}

// watch registers the observer under identity so it sees every broadcast.
func (e *testEnv) watch(t *testing.T, identity string) {
	t.Helper()
	require.NoError(t, e.hub.Registry.Register(e.observer, identity))
}

// start runs a session in the background.
func (e *testEnv) start(stream *fakeStream, credential string) <-chan *Session {
	done := make(chan *Session, 1)
	go func() {
		s, _ := e.manager.Run(context.Background(), stream, credential)
		done <- s
	}()
	return done
}

func waitSession(t *testing.T, done <-chan *Session) *Session {
	t.Helper()
	select {
	case s := <-done:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

func waitFrames(t *testing.T, r *recorder, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.frames()) >= n }, 2*time.Second, 5*time.Millisecond,
		"expected at least %d frames", n)
	return r.frames()
}

func decode(t *testing.T, frame string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(frame), &out), frame)
	return out
}

// gate is a connection whose Close blocks until release is closed.
type gate struct {
	recorder
	release chan struct{}
}

func (g *gate) Close(code int, reason string) error {
	<-g.release
	return g.recorder.Close(code, reason)
}

// messageFrames returns the decoded message frames r has received, in order.
func messageFrames(r *recorder) []map[string]any {
	var out []map[string]any
	for _, frame := range r.frames() {
		var decoded map[string]any
		if json.Unmarshal([]byte(frame), &decoded) == nil && decoded["type"] == "message" {
			out = append(out, decoded)
		}
	}
	return out
}
