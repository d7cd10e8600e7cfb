package auth

import (
	"context"
	"crypto/subtle"

	"github.com/wampkit/wampkit/wamp"
)

// TicketPrincipal is one entry in a static ticket table.
type TicketPrincipal struct {
	Ticket string
	Role   string
}

// TicketAuthenticator implements the "ticket" method against a static
// authid→principal table. The peer's HELLO must carry an authid; the
// challenge response must carry the matching ticket.
type TicketAuthenticator struct {
	principals map[string]TicketPrincipal
}

var _ Authenticator = (*TicketAuthenticator)(nil)

// NewTicketAuthenticator builds a ticket authenticator from a static
// table keyed by authid.
func NewTicketAuthenticator(principals map[string]TicketPrincipal) *TicketAuthenticator {
	copied := make(map[string]TicketPrincipal, len(principals))
	for k, v := range principals {
		copied[k] = v
	}
	return &TicketAuthenticator{principals: copied}
}

func (a *TicketAuthenticator) Methods() []string { return []string{"ticket"} }

type ticketState struct {
	authid string
}

func (a *TicketAuthenticator) Authenticate(_ context.Context, _ wamp.URI, details wamp.Dict) (Result, error) {
	authid := details.String("authid")
	if authid == "" {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "authid required for ticket authentication"}, nil
	}
	// Challenge even unknown authids so probing cannot distinguish
	// unknown principals from wrong tickets.
	return &Challenge{Method: "ticket", State: &ticketState{authid: authid}}, nil
}

func (a *TicketAuthenticator) CheckResponse(_ context.Context, ch *Challenge, signature string, _ wamp.Dict) (Result, error) {
	st, ok := ch.State.(*ticketState)
	if !ok {
		return &Deny{Reason: wamp.ErrAuthorizationFailed}, nil
	}
	p, ok := a.principals[st.authid]
	if !ok || subtle.ConstantTimeCompare([]byte(p.Ticket), []byte(signature)) != 1 {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "invalid ticket"}, nil
	}
	return &Accept{AuthID: st.authid, AuthRole: p.Role, AuthMethod: "ticket"}, nil
}
