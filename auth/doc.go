// Package auth defines the pluggable authentication and authorization
// contracts consumed by the router, together with ready-made
// implementations: anonymous join, static tickets, HMAC
// challenge/response, and JWT bearer tokens validated against a JWKS.
//
// Authentication runs during the session handshake and produces the
// session's identity (authid, authrole, authmethod). Authorization runs
// per operation (subscribe, publish, register, call) against that
// identity and may block; the router suspends only the request awaiting
// the decision.
package auth
