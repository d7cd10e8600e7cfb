package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/wampkit/wampkit/auth"
	"github.com/wampkit/wampkit/transport"
	"github.com/wampkit/wampkit/wamp"
)

// errHandshakeAborted signals that the handshake ended without an
// established session; the connection is already dead or aborted.
var errHandshakeAborted = errors.New("router: handshake aborted")

// abortHandshake sends ABORT and reports the handshake as failed. The
// peer must not retry on the same connection, so the conn is closed by
// the caller unwinding through Attach.
func abortHandshake(ctx context.Context, conn transport.Conn, reason wamp.URI, message string) error {
	details := wamp.Dict{}
	if message != "" {
		details["message"] = message
	}
	_ = conn.Send(ctx, &wamp.Abort{Details: details, Reason: reason})
	return fmt.Errorf("%w: %s", errHandshakeAborted, reason)
}

// handshake drives a fresh connection from HELLO to an authenticated
// identity on a live realm. Any protocol deviation or authentication
// failure aborts the connection; there is no retry within a handshake
// beyond the bounded challenge round-trips.
func (rt *Router) handshake(ctx context.Context, conn transport.Conn) (*realm, auth.Identity, error) {
	msg, err := conn.Receive(ctx)
	if err != nil {
		return nil, auth.Identity{}, fmt.Errorf("router: reading HELLO: %w", err)
	}
	hello, ok := msg.(*wamp.Hello)
	if !ok {
		return nil, auth.Identity{}, abortHandshake(ctx, conn, wamp.ErrProtocolViolation, "expected HELLO")
	}
	if !wamp.ValidURI(hello.Realm) {
		return nil, auth.Identity{}, abortHandshake(ctx, conn, wamp.ErrInvalidURI, "invalid realm name")
	}

	r, err := rt.realmFor(hello.Realm)
	if err != nil {
		return nil, auth.Identity{}, abortHandshake(ctx, conn, wamp.ErrNoSuchRealm, err.Error())
	}

	authr := rt.selectAuthenticator(hello.Details)
	if authr == nil {
		return nil, auth.Identity{}, abortHandshake(ctx, conn, wamp.ErrNoSuchAuthMethod, "no matching authmethod")
	}

	res, err := authr.Authenticate(ctx, hello.Realm, hello.Details)
	for attempts := 0; ; attempts++ {
		if err != nil {
			rt.log.Warn("authentication error", "realm", string(hello.Realm), "err", err)
			return nil, auth.Identity{}, abortHandshake(ctx, conn, wamp.ErrAuthorizationFailed, "authentication failed")
		}
		switch v := res.(type) {
		case *auth.Accept:
			return r, auth.Identity{
				AuthID:     v.AuthID,
				AuthRole:   v.AuthRole,
				AuthMethod: v.AuthMethod,
				Extra:      v.Extra,
			}, nil
		case *auth.Deny:
			reason := v.Reason
			if reason == "" {
				reason = wamp.ErrAuthorizationFailed
			}
			return nil, auth.Identity{}, abortHandshake(ctx, conn, reason, v.Message)
		case *auth.Challenge:
			if attempts >= rt.maxAuthAttempts {
				return nil, auth.Identity{}, abortHandshake(ctx, conn, wamp.ErrAuthorizationFailed, "too many authentication attempts")
			}
			if err := conn.Send(ctx, &wamp.Challenge{AuthMethod: v.Method, Extra: v.Extra}); err != nil {
				return nil, auth.Identity{}, fmt.Errorf("router: sending CHALLENGE: %w", err)
			}
			reply, rerr := conn.Receive(ctx)
			if rerr != nil {
				return nil, auth.Identity{}, fmt.Errorf("router: reading AUTHENTICATE: %w", rerr)
			}
			switch m := reply.(type) {
			case *wamp.Authenticate:
				res, err = authr.CheckResponse(ctx, v, m.Signature, m.Extra)
			case *wamp.Abort:
				return nil, auth.Identity{}, fmt.Errorf("%w: peer aborted: %s", errHandshakeAborted, m.Reason)
			default:
				return nil, auth.Identity{}, abortHandshake(ctx, conn, wamp.ErrProtocolViolation, "expected AUTHENTICATE")
			}
		default:
			return nil, auth.Identity{}, abortHandshake(ctx, conn, wamp.ErrAuthorizationFailed, "authenticator returned no result")
		}
	}
}

// selectAuthenticator picks the first of the peer's offered authmethods
// that the router has an authenticator for, in the peer's preference
// order. A HELLO with no authmethods asks for anonymous.
func (rt *Router) selectAuthenticator(details wamp.Dict) auth.Authenticator {
	offered := details.StringList("authmethods")
	if len(offered) == 0 {
		offered = []string{"anonymous"}
	}
	for _, method := range offered {
		if a, ok := rt.authenticators[method]; ok {
			return a
		}
	}
	return nil
}

// welcomeDetails advertises the router's roles and features to a newly
// established session.
func (rt *Router) welcomeDetails(identity auth.Identity, withHistory bool) wamp.Dict {
	brokerFeatures := wamp.Dict{
		"subscriber_blackwhite_listing": true,
		"publisher_exclusion":           true,
		"publisher_identification":      true,
		"pattern_based_subscription":    true,
		"session_meta_api":              true,
	}
	if withHistory {
		brokerFeatures["event_history"] = true
	}
	return wamp.Dict{
		"authid":     identity.AuthID,
		"authrole":   identity.AuthRole,
		"authmethod": identity.AuthMethod,
		"roles": wamp.Dict{
			"broker": wamp.Dict{"features": brokerFeatures},
			"dealer": wamp.Dict{"features": wamp.Dict{
				"progressive_call_results":   true,
				"call_timeout":               true,
				"call_canceling":             true,
				"caller_identification":      true,
				"pattern_based_registration": true,
				"shared_registration":        true,
				"session_meta_api":           true,
			}},
		},
	}
}
