package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/wampkit/wampkit/wamp"
)

// CRAPrincipal is one entry in a challenge/response principal table.
type CRAPrincipal struct {
	Secret []byte
	Role   string
}

// CRAAuthenticator implements the "wampcra" challenge/response method.
// The router issues a one-time challenge document; the peer must return
// a compact HS256 JWS over that exact document, signed with its shared
// secret.
type CRAAuthenticator struct {
	principals map[string]CRAPrincipal
	now        func() time.Time
}

var _ Authenticator = (*CRAAuthenticator)(nil)

// NewCRAAuthenticator builds a wampcra authenticator from a static table
// keyed by authid.
func NewCRAAuthenticator(principals map[string]CRAPrincipal) *CRAAuthenticator {
	copied := make(map[string]CRAPrincipal, len(principals))
	for k, v := range principals {
		copied[k] = v
	}
	return &CRAAuthenticator{principals: copied, now: time.Now}
}

func (a *CRAAuthenticator) Methods() []string { return []string{"wampcra"} }

type craChallengeDoc struct {
	AuthID    string `json:"authid"`
	AuthRole  string `json:"authrole"`
	Nonce     string `json:"nonce"`
	Timestamp string `json:"timestamp"`
}

type craState struct {
	authid    string
	challenge []byte
}

func (a *CRAAuthenticator) Authenticate(_ context.Context, _ wamp.URI, details wamp.Dict) (Result, error) {
	authid := details.String("authid")
	if authid == "" {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "authid required for wampcra"}, nil
	}
	p, ok := a.principals[authid]
	if !ok {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "unknown principal"}, nil
	}
	doc, err := json.Marshal(craChallengeDoc{
		AuthID:    authid,
		AuthRole:  p.Role,
		Nonce:     uuid.NewString(),
		Timestamp: a.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal challenge: %w", err)
	}
	return &Challenge{
		Method: "wampcra",
		Extra:  wamp.Dict{"challenge": string(doc)},
		State:  &craState{authid: authid, challenge: doc},
	}, nil
}

func (a *CRAAuthenticator) CheckResponse(_ context.Context, ch *Challenge, signature string, _ wamp.Dict) (Result, error) {
	st, ok := ch.State.(*craState)
	if !ok {
		return &Deny{Reason: wamp.ErrAuthorizationFailed}, nil
	}
	p, ok := a.principals[st.authid]
	if !ok {
		return &Deny{Reason: wamp.ErrAuthorizationFailed}, nil
	}
	jws, err := jose.ParseSigned(signature, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "malformed signature"}, nil
	}
	payload, err := jws.Verify(p.Secret)
	if err != nil {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "signature verification failed"}, nil
	}
	if string(payload) != string(st.challenge) {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "challenge mismatch"}, nil
	}
	return &Accept{AuthID: st.authid, AuthRole: p.Role, AuthMethod: "wampcra"}, nil
}

// SignCRAChallenge produces the response signature a client must return
// for the given challenge document. Exported for client implementations
// and tests.
func SignCRAChallenge(challenge string, secret []byte) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	jws, err := signer.Sign([]byte(challenge))
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge: %w", err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize jws: %w", err)
	}
	return compact, nil
}
