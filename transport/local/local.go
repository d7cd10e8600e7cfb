// Package local provides an in-process transport: a pair of connected
// Conns backed by channels. It is the standard way to embed a client in
// the router's process and the backbone of the router tests.
package local

import (
	"context"
	"sync"

	"github.com/wampkit/wampkit/transport"
	"github.com/wampkit/wampkit/wamp"
)

const defaultBuffer = 64

// Pipe returns two connected in-process conns. Messages sent on one are
// received on the other, in order. Closing either side closes both.
func Pipe() (client, server transport.Conn) {
	return PipeBuffered(defaultBuffer)
}

// PipeBuffered is Pipe with an explicit per-direction buffer size.
func PipeBuffered(buffer int) (client, server transport.Conn) {
	if buffer < 1 {
		buffer = 1
	}
	c2s := make(chan wamp.Message, buffer)
	s2c := make(chan wamp.Message, buffer)
	shared := &pipeState{done: make(chan struct{})}
	client = &conn{in: s2c, out: c2s, state: shared, addr: "local:client"}
	server = &conn{in: c2s, out: s2c, state: shared, addr: "local:server"}
	return client, server
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

func (s *pipeState) close() {
	s.once.Do(func() { close(s.done) })
}

type conn struct {
	in    <-chan wamp.Message
	out   chan<- wamp.Message
	state *pipeState
	addr  string
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) Send(ctx context.Context, msg wamp.Message) error {
	select {
	case <-c.state.done:
		return transport.ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.state.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Receive(ctx context.Context) (wamp.Message, error) {
	// Drain buffered messages even after close so a Goodbye that raced
	// the teardown is still observed.
	select {
	case msg := <-c.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.state.done:
		select {
		case msg := <-c.in:
			return msg, nil
		default:
			return nil, transport.ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Close() error {
	c.state.close()
	return nil
}

func (c *conn) RemoteAddr() string { return c.addr }
