// Package logctx enriches slog records with routing context carried in
// the request context: the realm, the session, and the message being
// dispatched.
package logctx

import (
	"context"
	"log/slog"

	"github.com/wampkit/wampkit/wamp"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(realmDataKey{}).(*RealmData); ok {
		r.AddAttrs(slog.Group("realm",
			slog.String("name", rd.Name),
		))
	}

	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.Uint64("id", uint64(sd.SessionID)),
			slog.String("authid", sd.AuthID),
			slog.String("authrole", sd.AuthRole),
			slog.String("state", sd.State),
		))
	}

	if md, ok := ctx.Value(messageDataKey{}).(*MessageData); ok {
		r.AddAttrs(slog.Group("msg",
			slog.String("kind", md.Kind.String()),
			slog.Uint64("request", uint64(md.Request)),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type realmDataKey struct{}

type RealmData struct {
	Name string
}

func WithRealmData(ctx context.Context, data *RealmData) context.Context {
	return context.WithValue(ctx, realmDataKey{}, data)
}

type sessionDataKey struct{}

type SessionData struct {
	SessionID wamp.ID
	AuthID    string
	AuthRole  string
	State     string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type messageDataKey struct{}

type MessageData struct {
	Kind    wamp.MessageKind
	Request wamp.ID
}

func WithMessageData(ctx context.Context, data *MessageData) context.Context {
	return context.WithValue(ctx, messageDataKey{}, data)
}
