package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wampkit/wampkit/auth"
	"github.com/wampkit/wampkit/transport"
	"github.com/wampkit/wampkit/wamp"
)

// sessionState is the lifecycle position of one session. Transitions
// only move forward; Closed is terminal.
type sessionState int32

const (
	stateConnecting sessionState = iota
	stateAuthenticating
	stateEstablished
	stateClosing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateEstablished:
		return "established"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// session is one authenticated peer attached to a realm. The inbound
// side is driven by the read loop in Router.Attach; the outbound side is
// a bounded queue drained by writeLoop. All routing state the session
// owns (subscriptions, registrations, correlations) lives in the realm's
// broker and dealer and is reclaimed through the realm op queue exactly
// once, no matter how many paths race to kill the session.
type session struct {
	id       wamp.ID
	identity auth.Identity
	conn     transport.Conn
	log      *slog.Logger

	state atomic.Int32

	out      chan wamp.Message
	quit     chan struct{}
	quitOnce sync.Once

	// closeReason records the first kill reason for logging and the
	// leave notification.
	closeReason atomic.Value // wamp.URI
}

func newSession(id wamp.ID, identity auth.Identity, conn transport.Conn, queueSize int, log *slog.Logger) *session {
	s := &session{
		id:       id,
		identity: identity,
		conn:     conn,
		log:      log,
		out:      make(chan wamp.Message, queueSize),
		quit:     make(chan struct{}),
	}
	s.state.Store(int32(stateConnecting))
	return s
}

func (s *session) getState() sessionState { return sessionState(s.state.Load()) }

func (s *session) setState(st sessionState) { s.state.Store(int32(st)) }

// trySend enqueues msg on the outbound queue without ever blocking the
// caller. A full queue means the peer is too slow to keep up; the policy
// is to treat it as disconnected rather than stall the realm.
func (s *session) trySend(msg wamp.Message) {
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.out <- msg:
	default:
		s.log.Warn("outbound queue overflow, treating session as disconnected",
			"session", uint64(s.id), "kind", msg.Kind().String())
		s.kill(wamp.ErrNetworkFailure)
	}
}

// sendDirect writes on the connection immediately, bypassing the queue.
// Used for handshake and abort messages that must not be reordered
// behind queued routing traffic. Conn implementations serialize writes.
func (s *session) sendDirect(ctx context.Context, msg wamp.Message) error {
	return s.conn.Send(ctx, msg)
}

// kill transitions the session to Closed and closes the connection,
// unblocking both loops. Idempotent and safe to call concurrently from
// the transport-close path and internal housekeeping.
func (s *session) kill(reason wamp.URI) {
	s.quitOnce.Do(func() {
		s.closeReason.Store(reason)
		s.setState(stateClosed)
		close(s.quit)
		_ = s.conn.Close()
	})
}

func (s *session) killReason() wamp.URI {
	if r, ok := s.closeReason.Load().(wamp.URI); ok {
		return r
	}
	return wamp.ErrNetworkFailure
}

// writeLoop drains the outbound queue onto the connection. It exits on
// kill or on the first write failure, which itself kills the session.
func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case msg := <-s.out:
			if err := s.conn.Send(ctx, msg); err != nil {
				s.kill(wamp.ErrNetworkFailure)
				return
			}
		case <-s.quit:
			return
		}
	}
}
