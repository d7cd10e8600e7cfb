package auth

import (
	"context"

	"github.com/wampkit/wampkit/wamp"
)

// Result is the outcome of one handshake step. The concrete types are
// Accept, Challenge, and Deny; the set is sealed.
type Result interface {
	handshakeResult()
}

// Accept admits the peer with the given identity.
type Accept struct {
	AuthID     string
	AuthRole   string
	AuthMethod string
	Extra      wamp.Dict
}

// Challenge asks the peer to prove its identity; the router relays
// Method and Extra to the peer and hands State back to the
// authenticator with the peer's response.
type Challenge struct {
	Method string
	Extra  wamp.Dict
	// State is opaque authenticator-private data carried across the
	// round trip (e.g. the expected signature).
	State any
}

// Deny rejects the peer. Reason defaults to
// wamp.error.authorization_failed when empty.
type Deny struct {
	Reason  wamp.URI
	Message string
}

func (*Accept) handshakeResult()    {}
func (*Challenge) handshakeResult() {}
func (*Deny) handshakeResult()      {}

// Authenticator drives the handshake for the auth methods it supports.
type Authenticator interface {
	// Methods lists the auth method names this authenticator handles,
	// matched against the HELLO's offered authmethods.
	Methods() []string

	// Authenticate starts authentication from the HELLO details. It
	// returns Accept to admit immediately, Challenge to start a
	// challenge/response round, or Deny.
	Authenticate(ctx context.Context, realm wamp.URI, details wamp.Dict) (Result, error)

	// CheckResponse evaluates the peer's answer to a Challenge. It may
	// return a further Challenge; the router bounds the number of rounds.
	CheckResponse(ctx context.Context, ch *Challenge, signature string, extra wamp.Dict) (Result, error)
}
