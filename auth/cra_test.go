package auth

import (
	"context"
	"testing"

	"github.com/wampkit/wampkit/wamp"
)

func TestCRARoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	a := NewCRAAuthenticator(map[string]CRAPrincipal{
		"bob": {Secret: secret, Role: "backend"},
	})

	res, err := a.Authenticate(context.Background(), "realm1", wamp.Dict{"authid": "bob"})
	if err != nil {
		t.Fatal(err)
	}
	ch, ok := res.(*Challenge)
	if !ok {
		t.Fatalf("result = %T, want *Challenge", res)
	}
	doc := ch.Extra.String("challenge")
	if doc == "" {
		t.Fatal("challenge document missing")
	}

	sig, err := SignCRAChallenge(doc, secret)
	if err != nil {
		t.Fatal(err)
	}
	res, err = a.CheckResponse(context.Background(), ch, sig, nil)
	if err != nil {
		t.Fatal(err)
	}
	acc, ok := res.(*Accept)
	if !ok {
		t.Fatalf("result = %T, want *Accept", res)
	}
	if acc.AuthID != "bob" || acc.AuthRole != "backend" || acc.AuthMethod != "wampcra" {
		t.Fatalf("unexpected identity: %+v", acc)
	}
}

func TestCRAWrongSecretDenied(t *testing.T) {
	a := NewCRAAuthenticator(map[string]CRAPrincipal{
		"bob": {Secret: []byte("0123456789abcdef0123456789abcdef"), Role: "backend"},
	})
	res, _ := a.Authenticate(context.Background(), "realm1", wamp.Dict{"authid": "bob"})
	ch := res.(*Challenge)

	sig, err := SignCRAChallenge(ch.Extra.String("challenge"), []byte("ffffffffffffffffffffffffffffffff"))
	if err != nil {
		t.Fatal(err)
	}
	res, err = a.CheckResponse(context.Background(), ch, sig, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.(*Deny); !ok {
		t.Fatalf("result = %T, want *Deny", res)
	}
}

func TestCRAUnknownPrincipal(t *testing.T) {
	a := NewCRAAuthenticator(nil)
	res, err := a.Authenticate(context.Background(), "realm1", wamp.Dict{"authid": "mallory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.(*Deny); !ok {
		t.Fatalf("result = %T, want *Deny", res)
	}
}
