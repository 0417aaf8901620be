package hub

import (
	"context"
	"errors"
	"sync"

	"groupchat/pkg/interfaces"
)

type fakeConn struct {
	id string

	mu          sync.Mutex
	sent        [][]byte
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
	closeErr    error
	block       bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	block, sendErr, closed := c.block, c.sendErr, c.closed
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if closed {
		return interfaces.ErrConnectionClosed
	}
	if sendErr != nil {
		return sendErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.closeReason = reason
	}
	return c.closeErr
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, p := range c.sent {
		out[i] = string(p)
	}
	return out
}

func (c *fakeConn) isClosed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

func (c *fakeConn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = errors.New("broken pipe")
}
