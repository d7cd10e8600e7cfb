package auth

import (
	"context"
	"testing"

	"github.com/wampkit/wampkit/wamp"
)

func TestRoleAuthorizerLongestPrefixWins(t *testing.T) {
	a := NewRoleAuthorizer(map[string][]Grant{
		"user": {
			{Prefix: "com.example.", Subscribe: true, Publish: true, Call: true},
			{Prefix: "com.example.admin.", Subscribe: true},
		},
	})
	id := &Identity{AuthID: "alice", AuthRole: "user"}

	d, err := a.Authorize(context.Background(), id, ActionPublish, "com.example.news", nil)
	if err != nil || !d.Allow {
		t.Fatalf("publish com.example.news: allow=%v err=%v", d.Allow, err)
	}

	// The longer admin prefix grants subscribe only, so publish under it
	// must be denied even though the shorter grant would allow it.
	d, err = a.Authorize(context.Background(), id, ActionPublish, "com.example.admin.ops", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allow {
		t.Fatal("publish under admin prefix should be denied")
	}

	d, err = a.Authorize(context.Background(), id, ActionSubscribe, "com.example.admin.ops", nil)
	if err != nil || !d.Allow {
		t.Fatalf("subscribe under admin prefix: allow=%v err=%v", d.Allow, err)
	}
}

func TestRoleAuthorizerUnknownRoleDenied(t *testing.T) {
	a := NewRoleAuthorizer(map[string][]Grant{})
	d, err := a.Authorize(context.Background(), &Identity{AuthRole: "ghost"}, ActionCall, "com.example.proc", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allow {
		t.Fatal("unknown role must be denied")
	}
	if d.Reason != wamp.ErrNotAuthorized {
		t.Fatalf("reason = %q", d.Reason)
	}
}

func TestAnonymousAuthenticator(t *testing.T) {
	a := &AnonymousAuthenticator{}
	res, err := a.Authenticate(context.Background(), "realm1", wamp.Dict{})
	if err != nil {
		t.Fatal(err)
	}
	acc, ok := res.(*Accept)
	if !ok {
		t.Fatalf("result = %T, want *Accept", res)
	}
	if acc.AuthID == "" || acc.AuthRole != "anonymous" || acc.AuthMethod != "anonymous" {
		t.Fatalf("unexpected identity: %+v", acc)
	}
}

func TestTicketAuthenticator(t *testing.T) {
	a := NewTicketAuthenticator(map[string]TicketPrincipal{
		"alice": {Ticket: "s3cret", Role: "user"},
	})

	res, err := a.Authenticate(context.Background(), "realm1", wamp.Dict{"authid": "alice"})
	if err != nil {
		t.Fatal(err)
	}
	ch, ok := res.(*Challenge)
	if !ok {
		t.Fatalf("result = %T, want *Challenge", res)
	}

	res, err = a.CheckResponse(context.Background(), ch, "s3cret", nil)
	if err != nil {
		t.Fatal(err)
	}
	acc, ok := res.(*Accept)
	if !ok {
		t.Fatalf("result = %T, want *Accept", res)
	}
	if acc.AuthID != "alice" || acc.AuthRole != "user" {
		t.Fatalf("unexpected identity: %+v", acc)
	}

	res, err = a.CheckResponse(context.Background(), ch, "wrong", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.(*Deny); !ok {
		t.Fatalf("result = %T, want *Deny", res)
	}
}

func TestTicketAuthenticatorMissingAuthID(t *testing.T) {
	a := NewTicketAuthenticator(nil)
	res, err := a.Authenticate(context.Background(), "realm1", wamp.Dict{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.(*Deny); !ok {
		t.Fatalf("result = %T, want *Deny", res)
	}
}
