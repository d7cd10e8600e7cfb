// Package transport defines the connection contract between a peer and
// the router. A Conn carries already-decoded wamp.Message values; how
// frames are encoded, upgraded, or secured is the transport's own
// business and never visible to the routing core.
package transport

import (
	"context"
	"errors"

	"github.com/wampkit/wampkit/wamp"
)

// ErrClosed indicates the connection is closed. Receive returns it once
// the peer is gone and no buffered messages remain.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one peer connection. Send must be safe for concurrent use:
// the router writes queued traffic and direct control messages from
// different goroutines. Receive has a single caller.
type Conn interface {
	// Send enqueues a message for delivery to the peer. It must not
	// block indefinitely; transports apply their own write deadlines.
	Send(ctx context.Context, msg wamp.Message) error

	// Receive blocks until the next inbound message, the context is
	// done, or the connection closes (ErrClosed).
	Receive(ctx context.Context) (wamp.Message, error)

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}
