package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/wampkit/wampkit/wamp"
)

// AnonymousAuthenticator admits any peer offering the "anonymous" method
// (or offering no methods at all), assigning a random authid and a fixed
// role.
type AnonymousAuthenticator struct {
	// Role assigned to anonymous sessions. Defaults to "anonymous".
	Role string
}

var _ Authenticator = (*AnonymousAuthenticator)(nil)

func (a *AnonymousAuthenticator) Methods() []string { return []string{"anonymous"} }

func (a *AnonymousAuthenticator) Authenticate(_ context.Context, _ wamp.URI, details wamp.Dict) (Result, error) {
	role := a.Role
	if role == "" {
		role = "anonymous"
	}
	authid := details.String("authid")
	if authid == "" {
		authid = uuid.NewString()
	}
	return &Accept{AuthID: authid, AuthRole: role, AuthMethod: "anonymous"}, nil
}

func (a *AnonymousAuthenticator) CheckResponse(context.Context, *Challenge, string, wamp.Dict) (Result, error) {
	// Anonymous never issues a challenge.
	return &Deny{Reason: wamp.ErrAuthorizationFailed}, nil
}
