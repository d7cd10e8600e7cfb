// Package router implements a realm-partitioned message router: a
// broker for publish/subscribe and a dealer for routed RPC, with
// authentication and per-operation authorization at the edges. Peers
// attach over any transport.Conn; everything inside a realm is
// serialized through that realm's op queue.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/wampkit/wampkit/auth"
	"github.com/wampkit/wampkit/history"
	"github.com/wampkit/wampkit/internal/logctx"
	"github.com/wampkit/wampkit/transport"
	"github.com/wampkit/wampkit/wamp"
)

var (
	// ErrRouterClosed is returned by Attach and AddRealm after Close.
	ErrRouterClosed = errors.New("router: closed")

	// ErrRealmExists is returned by AddRealm for a duplicate name.
	ErrRealmExists = errors.New("router: realm already exists")
)

const (
	defaultQueueSize        = 256
	defaultMaxAuthAttempts  = 3
	defaultHandshakeTimeout = 30 * time.Second
)

// Router owns the realm registry and drives attached connections
// through handshake, established traffic, and teardown.
type Router struct {
	log              *slog.Logger
	clk              clock.Clock
	authenticators   map[string]auth.Authenticator
	authorizer       auth.Authorizer
	hist             history.Store
	queueSize        int
	maxAuthAttempts  int
	handshakeTimeout time.Duration
	autoRealm        bool
	idleTeardown     time.Duration
	instanceID       string

	mu     sync.RWMutex
	realms map[wamp.URI]*realm
	closed bool
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(rt *Router) { rt.log = log }
}

// WithClock substitutes the clock used for call timeouts. Tests pass a
// mock; production uses the default real clock.
func WithClock(clk clock.Clock) Option {
	return func(rt *Router) { rt.clk = clk }
}

// WithAuthenticator registers an authenticator for every method it
// reports. Later registrations win on method collisions.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(rt *Router) {
		for _, m := range a.Methods() {
			rt.authenticators[m] = a
		}
	}
}

// WithAuthorizer sets the per-operation authorizer applied to
// subscribe, publish, register, and call in every realm. Without one,
// every operation is allowed.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(rt *Router) { rt.authorizer = a }
}

// WithAutoRealm makes a HELLO for an unknown (but valid) realm name
// create the realm on the fly instead of aborting.
func WithAutoRealm() Option {
	return func(rt *Router) { rt.autoRealm = true }
}

// WithIdleRealmTeardown closes any realm that has had no sessions for
// d. Pairs with WithAutoRealm so on-demand realms do not accumulate.
func WithIdleRealmTeardown(d time.Duration) Option {
	return func(rt *Router) {
		if d > 0 {
			rt.idleTeardown = d
		}
	}
}

// WithSendQueueSize bounds each session's outbound queue. A session
// whose queue overflows is treated as disconnected.
func WithSendQueueSize(n int) Option {
	return func(rt *Router) {
		if n > 0 {
			rt.queueSize = n
		}
	}
}

// WithEventHistory retains routed publications in store and enables the
// event history meta procedure.
func WithEventHistory(store history.Store) Option {
	return func(rt *Router) { rt.hist = store }
}

// WithMaxAuthAttempts bounds challenge round-trips per handshake.
func WithMaxAuthAttempts(n int) Option {
	return func(rt *Router) {
		if n > 0 {
			rt.maxAuthAttempts = n
		}
	}
}

// WithHandshakeTimeout bounds how long a connection may take to reach
// an established session.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(rt *Router) {
		if d > 0 {
			rt.handshakeTimeout = d
		}
	}
}

// New constructs a Router. With no WithAuthenticator option, anonymous
// access is enabled.
func New(opts ...Option) *Router {
	rt := &Router{
		log:              slog.Default(),
		clk:              clock.New(),
		authenticators:   make(map[string]auth.Authenticator),
		queueSize:        defaultQueueSize,
		maxAuthAttempts:  defaultMaxAuthAttempts,
		handshakeTimeout: defaultHandshakeTimeout,
		instanceID:       uuid.NewString(),
		realms:           make(map[wamp.URI]*realm),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if len(rt.authenticators) == 0 {
		WithAuthenticator(&auth.AnonymousAuthenticator{})(rt)
	}
	rt.log = rt.log.With("router", rt.instanceID)
	return rt
}

// AddRealm creates a realm. Names must be valid URIs and unique.
func (rt *Router) AddRealm(name wamp.URI) error {
	if !wamp.ValidURI(name) {
		return fmt.Errorf("router: invalid realm name %q", name)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return ErrRouterClosed
	}
	if _, ok := rt.realms[name]; ok {
		return fmt.Errorf("%w: %s", ErrRealmExists, name)
	}
	rt.realms[name] = rt.newRealmLocked(name)
	return nil
}

func (rt *Router) newRealmLocked(name wamp.URI) *realm {
	return newRealm(name, rt.log, rt.clk, rt.authorizer, rt.hist, rt.idleTeardown, func(r *realm) {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.realms[name] == r {
			delete(rt.realms, name)
		}
	})
}

// RemoveRealm tears a realm down, aborting all of its sessions.
func (rt *Router) RemoveRealm(name wamp.URI) {
	rt.mu.RLock()
	r, ok := rt.realms[name]
	rt.mu.RUnlock()
	if ok {
		r.close(wamp.ErrCloseRealm)
	}
}

// RealmNames lists the currently registered realms.
func (rt *Router) RealmNames() []wamp.URI {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	names := make([]wamp.URI, 0, len(rt.realms))
	for name := range rt.realms {
		names = append(names, name)
	}
	return names
}

// realmFor resolves the realm a HELLO names, creating it when auto
// realm provisioning is on.
func (rt *Router) realmFor(name wamp.URI) (*realm, error) {
	rt.mu.RLock()
	r, ok := rt.realms[name]
	closed := rt.closed
	rt.mu.RUnlock()
	if closed {
		return nil, ErrRouterClosed
	}
	if ok {
		return r, nil
	}
	if !rt.autoRealm {
		return nil, fmt.Errorf("no realm %q", name)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, ErrRouterClosed
	}
	if r, ok := rt.realms[name]; ok {
		return r, nil
	}
	r = rt.newRealmLocked(name)
	rt.realms[name] = r
	rt.log.Info("auto-provisioned realm", "realm", string(name))
	return r, nil
}

// Close tears down every realm and refuses new attachments.
func (rt *Router) Close() {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return
	}
	rt.closed = true
	realms := make([]*realm, 0, len(rt.realms))
	for _, r := range rt.realms {
		realms = append(realms, r)
	}
	rt.mu.Unlock()
	for _, r := range realms {
		r.close(wamp.ErrSystemShutdown)
	}
}

// Attach serves one connection for its whole lifetime: handshake,
// established traffic, teardown. It returns when the session ends for
// any reason; the connection is always closed by then. Callers run one
// Attach per accepted connection, each on its own goroutine.
func (rt *Router) Attach(ctx context.Context, conn transport.Conn) error {
	defer conn.Close()

	rt.mu.RLock()
	closed := rt.closed
	rt.mu.RUnlock()
	if closed {
		return ErrRouterClosed
	}

	hctx, cancel := context.WithTimeout(ctx, rt.handshakeTimeout)
	r, identity, err := rt.handshake(hctx, conn)
	cancel()
	if err != nil {
		return err
	}

	s := newSession(wamp.GlobalID(), identity, conn, rt.queueSize, rt.log)
	s.setState(stateAuthenticating)
	log := s.log.With("session", uint64(s.id), "realm", string(r.name), "authid", identity.AuthID)
	s.log = log

	if !r.join(s) {
		return abortHandshake(ctx, conn, wamp.ErrNoSuchRealm, "realm closed")
	}
	if err := s.sendDirect(ctx, &wamp.Welcome{
		Session: s.id,
		Details: rt.welcomeDetails(identity, rt.hist != nil),
	}); err != nil {
		s.kill(wamp.ErrNetworkFailure)
		r.leave(s)
		return fmt.Errorf("router: sending WELCOME: %w", err)
	}
	s.setState(stateEstablished)

	ctx = logctx.WithRealmData(ctx, &logctx.RealmData{Name: string(r.name)})
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: s.id,
		AuthID:    identity.AuthID,
		AuthRole:  identity.AuthRole,
		State:     s.getState().String(),
	})
	log.InfoContext(ctx, "session established", "authrole", identity.AuthRole, "authmethod", identity.AuthMethod)

	go s.writeLoop(ctx)
	rt.readLoop(ctx, r, s)

	log.InfoContext(ctx, "session closed", "reason", string(s.killReason()))
	return nil
}

// readLoop pulls inbound messages and dispatches them per the session's
// current state. Validation and authorization happen here, on this
// goroutine; only the resulting routing ops enter the realm queue.
func (rt *Router) readLoop(ctx context.Context, r *realm, s *session) {
	for {
		msg, err := s.conn.Receive(ctx)
		if err != nil {
			s.kill(wamp.ErrNetworkFailure)
			r.leave(s)
			return
		}
		st := s.getState()
		if st == stateClosed {
			return
		}
		if msg.Kind() == wamp.KindAbort {
			// Peer gave up; no reply to an ABORT, ever.
			s.kill(wamp.ErrNetworkFailure)
			r.leave(s)
			return
		}
		h, ok := dispatchTable[st][msg.Kind()]
		if !ok {
			if st == stateClosing {
				continue
			}
			s.protocolViolation(r, "unexpected "+msg.Kind().String())
			return
		}
		h(logctx.WithMessageData(ctx, &logctx.MessageData{Kind: msg.Kind()}), r, s, msg)
		if s.getState() == stateClosed {
			return
		}
	}
}
