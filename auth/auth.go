package auth

import (
	"context"
	"errors"

	"github.com/wampkit/wampkit/wamp"
)

// ErrUnauthorized indicates authentication failed or no valid credentials
// were supplied.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Identity is the authenticated principal attached to a session.
type Identity struct {
	AuthID     string
	AuthRole   string
	AuthMethod string
	// Extra carries provider-specific claims (e.g. decoded JWT claims).
	Extra wamp.Dict
}

// Action is a routing operation subject to authorization.
type Action string

const (
	ActionSubscribe Action = "subscribe"
	ActionPublish   Action = "publish"
	ActionRegister  Action = "register"
	ActionCall      Action = "call"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allow bool
	// Reason is sent to the requester on denial. Empty means
	// wamp.error.not_authorized.
	Reason wamp.URI
	// DiscloseAllowed permits identity disclosure on events/invocations
	// produced by the authorized operation.
	DiscloseAllowed bool
}

// Allow is the unconditional positive decision.
var Allow = Decision{Allow: true, DiscloseAllowed: true}

// Denied builds a negative decision with the given reason.
func Denied(reason wamp.URI) Decision {
	return Decision{Allow: false, Reason: reason}
}

// Authorizer decides whether an identity may perform an action on a
// resource URI. Implementations may block (e.g. a remote policy check);
// the router suspends only the single request awaiting the decision. A
// non-nil error is treated as a deny with wamp.error.authorization_failed
// and is logged.
type Authorizer interface {
	Authorize(ctx context.Context, id *Identity, action Action, resource wamp.URI, options wamp.Dict) (Decision, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, id *Identity, action Action, resource wamp.URI, options wamp.Dict) (Decision, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, id *Identity, action Action, resource wamp.URI, options wamp.Dict) (Decision, error) {
	return f(ctx, id, action, resource, options)
}

// AllowAll returns an authorizer that permits every operation.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(context.Context, *Identity, Action, wamp.URI, wamp.Dict) (Decision, error) {
		return Allow, nil
	})
}

// Grant describes what a role may do under a URI prefix.
type Grant struct {
	Prefix    wamp.URI
	Subscribe bool
	Publish   bool
	Register  bool
	Call      bool
	Disclose  bool
}

func (g Grant) permits(action Action) bool {
	switch action {
	case ActionSubscribe:
		return g.Subscribe
	case ActionPublish:
		return g.Publish
	case ActionRegister:
		return g.Register
	case ActionCall:
		return g.Call
	}
	return false
}

// RoleAuthorizer is a static role→grants table. The longest matching
// prefix grant for the identity's role decides; no matching grant denies.
type RoleAuthorizer struct {
	grants map[string][]Grant
}

// NewRoleAuthorizer builds an authorizer from a role→grants map.
func NewRoleAuthorizer(grants map[string][]Grant) *RoleAuthorizer {
	copied := make(map[string][]Grant, len(grants))
	for role, gs := range grants {
		copied[role] = append([]Grant(nil), gs...)
	}
	return &RoleAuthorizer{grants: copied}
}

func (a *RoleAuthorizer) Authorize(_ context.Context, id *Identity, action Action, resource wamp.URI, _ wamp.Dict) (Decision, error) {
	var best *Grant
	for i, g := range a.grants[id.AuthRole] {
		if !wamp.PrefixMatch(g.Prefix, resource) {
			continue
		}
		if best == nil || len(g.Prefix) > len(best.Prefix) {
			best = &a.grants[id.AuthRole][i]
		}
	}
	if best == nil || !best.permits(action) {
		return Denied(wamp.ErrNotAuthorized), nil
	}
	return Decision{Allow: true, DiscloseAllowed: best.Disclose}, nil
}

var _ Authorizer = (*RoleAuthorizer)(nil)
