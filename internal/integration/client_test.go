package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"groupchat/internal/app"
	"groupchat/internal/config"
)

const waitTimeout = 3 * time.Second

// frame is a decoded server frame. Plain-text notices have an empty Type
// and their text in Notice.
type frame struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Image     string    `json:"image"`
	IsSticker bool      `json:"isSticker"`
	Timestamp time.Time `json:"timestamp"`
	Users     []string  `json:"users"`
	Notice    string    `json:"-"`
}

type server struct {
	app     *app.Application
	baseURL string
	wsURL   string
}

func startServer(t *testing.T, mutate ...func(*config.Config)) *server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "chat.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Auth.Secret = strings.Repeat("i", config.MinSecretLength)
	cfg.Auth.BcryptCost = 4
	cfg.WebSocket.DeliveryTimeout = time.Second
	for _, m := range mutate {
		m(cfg)
	}

	application, err := app.NewApplication(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))

	s := &server{
		app:     application,
		baseURL: "http://" + application.Addr(),
		wsURL:   "ws://" + application.Addr(),
	}
	t.Cleanup(func() { s.stop(t) })
	return s
}

func (s *server) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.app.Stop(ctx))
}

func (s *server) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.baseURL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// token registers username and logs in.
func (s *server) token(t *testing.T, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "pw-" + username}

	resp := s.post(t, "/auth/register", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.post(t, "/auth/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "bearer", body.TokenType)
	return body.AccessToken
}

// chatClient reads frames in the background so tests can wait on them.
type chatClient struct {
	t      *testing.T
	name   string
	conn   *websocket.Conn
	frames chan frame
	done   chan struct{}

	writeMu sync.Mutex
	mu      sync.Mutex
	readErr error
}

func (s *server) connect(t *testing.T, name, token string) *chatClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL+"/ws/"+token, nil)
	require.NoError(t, err)

	c := &chatClient{
		t:      t,
		name:   name,
		conn:   conn,
		frames: make(chan frame, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// join connects and waits for the client's own join notice.
func (s *server) join(t *testing.T, name string) *chatClient {
	t.Helper()
	c := s.connect(t, name, s.token(t, name))
	c.waitNotice(name + " joined")
	return c
}

func (c *chatClient) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			f = frame{Notice: string(data)}
		}
		c.frames <- f
	}
}

func (c *chatClient) send(v any) {
	c.t.Helper()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

func (c *chatClient) sendText(text string) {
	c.t.Helper()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

// waitFor returns the first frame matching match, discarding the rest.
func (c *chatClient) waitFor(desc string, match func(frame) bool) frame {
	c.t.Helper()
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()
	for {
		select {
		case f := <-c.frames:
			if match(f) {
				return f
			}
		case <-c.done:
			// drain anything read before the close
			for {
				select {
				case f := <-c.frames:
					if match(f) {
						return f
					}
				default:
					c.t.Fatalf("%s: connection closed while waiting for %s: %v", c.name, desc, c.err())
				}
			}
		case <-timer.C:
			c.t.Fatalf("%s: timed out waiting for %s", c.name, desc)
		}
	}
}

func (c *chatClient) waitNotice(text string) {
	c.t.Helper()
	c.waitFor(fmt.Sprintf("notice %q", text), func(f frame) bool { return f.Notice == text })
}

func (c *chatClient) waitType(frameType string) frame {
	c.t.Helper()
	return c.waitFor("frame "+frameType, func(f frame) bool { return f.Type == frameType })
}

func (c *chatClient) waitUsers(frameType string, users ...string) frame {
	c.t.Helper()
	if users == nil {
		users = []string{}
	}
	return c.waitFor(fmt.Sprintf("%s %v", frameType, users), func(f frame) bool {
		if f.Type != frameType || len(f.Users) != len(users) {
			return false
		}
		for i := range users {
			if f.Users[i] != users[i] {
				return false
			}
		}
		return true
	})
}

// assertNoFrame fails if a frame matching match arrives within d.
func (c *chatClient) assertNoFrame(d time.Duration, desc string, match func(frame) bool) {
	c.t.Helper()
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case f := <-c.frames:
			if match(f) {
				c.t.Fatalf("%s: unexpected %s: %+v", c.name, desc, f)
			}
		case <-timer.C:
			return
		case <-c.done:
			return
		}
	}
}

// closeCode waits for the server to close the connection.
func (c *chatClient) closeCode() int {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(waitTimeout):
		c.t.Fatalf("%s: connection not closed", c.name)
	}
	var closeErr *websocket.CloseError
	if errors.As(c.err(), &closeErr) {
		return closeErr.Code
	}
	return -1
}

func (c *chatClient) leave() {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	c.writeMu.Unlock()
	select {
	case <-c.done:
	case <-time.After(waitTimeout):
	}
	_ = c.conn.Close()
}

func (c *chatClient) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}
