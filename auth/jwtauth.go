package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wampkit/wampkit/wamp"
)

// TokenConfig controls validation behavior for the "token" auth method.
type TokenConfig struct {
	Issuer string
	// ExpectedAudiences contains the primary audience (index 0) followed
	// by any additional accepted audiences.
	ExpectedAudiences []string
	AllowedAlgs       []string
	Leeway            time.Duration
	// RoleClaim names the claim mapped to authrole. When empty or when
	// the claim is absent, DefaultRole applies.
	RoleClaim   string
	DefaultRole string
}

// DefaultTokenConfig returns a TokenConfig with safe defaults for
// algorithm and leeway.
func DefaultTokenConfig() *TokenConfig {
	return &TokenConfig{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
		DefaultRole: "authenticated",
	}
}

// TokenAuthenticator implements the "token" auth method: the peer is
// challenged and must answer with a signed bearer token (JWT). The
// token's sub claim becomes the authid.
type TokenAuthenticator struct {
	cfg     *TokenConfig
	keyfunc jwt.Keyfunc
}

var _ Authenticator = (*TokenAuthenticator)(nil)

// NewTokenAuthenticator builds a token authenticator around an explicit
// key resolution function (e.g. a static HMAC key in tests).
func NewTokenAuthenticator(cfg *TokenConfig, kf jwt.Keyfunc) (*TokenAuthenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if kf == nil {
		return nil, errors.New("keyfunc is required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		return nil, errors.New("at least one allowed algorithm is required")
	}
	return &TokenAuthenticator{cfg: cfg, keyfunc: kf}, nil
}

// NewTokenAuthenticatorFromDiscovery performs OIDC discovery to obtain
// jwks_uri and issuer, and constructs a TokenAuthenticator whose JWKS
// keys are auto-refreshed.
func NewTokenAuthenticatorFromDiscovery(ctx context.Context, cfg *TokenConfig) (*TokenAuthenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	// Auto-refreshing JWKS
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return NewTokenAuthenticator(cfg, func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		allowed := false
		for _, a := range cfg.AllowedAlgs {
			if alg == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf.Keyfunc(t)
	})
}

func (a *TokenAuthenticator) Methods() []string { return []string{"token"} }

func (a *TokenAuthenticator) Authenticate(_ context.Context, _ wamp.URI, _ wamp.Dict) (Result, error) {
	return &Challenge{Method: "token"}, nil
}

func (a *TokenAuthenticator) CheckResponse(_ context.Context, _ *Challenge, signature string, _ wamp.Dict) (Result, error) {
	if signature == "" {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "empty token"}, nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.cfg.Leeway),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if len(a.cfg.ExpectedAudiences) == 1 {
		opts = append(opts, jwt.WithAudience(a.cfg.ExpectedAudiences[0]))
	}
	parser := jwt.NewParser(opts...)

	parsed, err := parser.Parse(signature, a.keyfunc)
	if err != nil {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "token parse/verify failed"}, nil
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if len(a.cfg.ExpectedAudiences) > 1 && !audIntersects(claims["aud"], a.cfg.ExpectedAudiences) {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "audience mismatch"}, nil
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return &Deny{Reason: wamp.ErrAuthorizationFailed, Message: "missing sub"}, nil
	}

	role := a.cfg.DefaultRole
	if a.cfg.RoleClaim != "" {
		if r, _ := claims[a.cfg.RoleClaim].(string); r != "" {
			role = r
		}
	}

	return &Accept{
		AuthID:     sub,
		AuthRole:   role,
		AuthMethod: "token",
		Extra:      wamp.Dict(claims),
	}, nil
}

func audIntersects(aud any, wants []string) bool {
	for _, want := range wants {
		if audContains(aud, want) {
			return true
		}
	}
	return false
}

func audContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}
