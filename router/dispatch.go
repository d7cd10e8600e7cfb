package router

import (
	"context"

	"github.com/wampkit/wampkit/auth"
	"github.com/wampkit/wampkit/wamp"
)

// handler processes one inbound message for an established or closing
// session. Handlers run on the session's read goroutine: they validate
// and authorize there (suspending only this session), then enqueue the
// actual routing mutation on the realm's op queue.
type handler func(ctx context.Context, r *realm, s *session, msg wamp.Message)

// dispatchTable is the closed per-state message acceptance map. A kind
// absent from the current state's row is a protocol violation in
// Established and silently dropped in Closing (the peer may have sent
// traffic before observing our GOODBYE).
var dispatchTable = map[sessionState]map[wamp.MessageKind]handler{
	stateEstablished: {
		wamp.KindSubscribe:   handleSubscribe,
		wamp.KindUnsubscribe: handleUnsubscribe,
		wamp.KindPublish:     handlePublish,
		wamp.KindRegister:    handleRegister,
		wamp.KindUnregister:  handleUnregister,
		wamp.KindCall:        handleCall,
		wamp.KindCancel:      handleCancel,
		wamp.KindYield:       handleYield,
		wamp.KindError:       handleCalleeError,
		wamp.KindGoodbye:     handleGoodbye,
	},
	stateClosing: {
		wamp.KindGoodbye: handleGoodbyeAck,
	},
}

func sendError(s *session, kind wamp.MessageKind, request wamp.ID, errURI wamp.URI) {
	s.trySend(&wamp.Error{ErrKind: kind, Request: request, Details: wamp.Dict{}, Error: errURI})
}

func handleSubscribe(ctx context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Subscribe)
	policy := msg.Options.String("match")
	if !wamp.ValidMatchPolicy(policy) {
		sendError(s, wamp.KindSubscribe, msg.Request, wamp.ErrOptionNotAllowed)
		return
	}
	if !wamp.ValidPattern(msg.Topic, policy) {
		sendError(s, wamp.KindSubscribe, msg.Request, wamp.ErrInvalidURI)
		return
	}
	if dec := r.authorize(ctx, s, auth.ActionSubscribe, msg.Topic, msg.Options); !dec.Allow {
		sendError(s, wamp.KindSubscribe, msg.Request, dec.Reason)
		return
	}
	r.enqueue(func() {
		sub := r.broker.subscribe(s, msg.Topic, normalizeMatch(policy))
		s.trySend(&wamp.Subscribed{Request: msg.Request, Subscription: sub.id})
	})
}

func handleUnsubscribe(_ context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Unsubscribe)
	r.enqueue(func() {
		if errURI := r.broker.unsubscribe(s, msg.Subscription); errURI != "" {
			sendError(s, wamp.KindUnsubscribe, msg.Request, errURI)
			return
		}
		s.trySend(&wamp.Unsubscribed{Request: msg.Request})
	})
}

func handlePublish(ctx context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Publish)
	acknowledge := msg.Options.Bool("acknowledge", false)
	if !wamp.ValidURI(msg.Topic) {
		if acknowledge {
			sendError(s, wamp.KindPublish, msg.Request, wamp.ErrInvalidURI)
		}
		return
	}
	dec := r.authorize(ctx, s, auth.ActionPublish, msg.Topic, msg.Options)
	if !dec.Allow {
		// A denied publish produces zero events; the publisher hears
		// about it only when it asked for an acknowledgement.
		if acknowledge {
			sendError(s, wamp.KindPublish, msg.Request, dec.Reason)
		}
		return
	}
	r.enqueue(func() {
		pubID, _ := r.broker.publish(s, msg, dec.DiscloseAllowed)
		r.appendHistory(pubID, msg)
		if acknowledge {
			s.trySend(&wamp.Published{Request: msg.Request, Publication: pubID})
		}
	})
}

func handleRegister(ctx context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Register)
	policy := msg.Options.String("match")
	invoke := msg.Options.String("invoke")
	if !wamp.ValidMatchPolicy(policy) || !wamp.ValidInvokePolicy(invoke) {
		sendError(s, wamp.KindRegister, msg.Request, wamp.ErrOptionNotAllowed)
		return
	}
	if !wamp.ValidPattern(msg.Procedure, policy) {
		sendError(s, wamp.KindRegister, msg.Request, wamp.ErrInvalidURI)
		return
	}
	if dec := r.authorize(ctx, s, auth.ActionRegister, msg.Procedure, msg.Options); !dec.Allow {
		sendError(s, wamp.KindRegister, msg.Request, dec.Reason)
		return
	}
	r.enqueue(func() {
		regID, errURI := r.dealer.register(s, msg.Procedure, normalizeMatch(policy), normalizeInvoke(invoke))
		if errURI != "" {
			sendError(s, wamp.KindRegister, msg.Request, errURI)
			return
		}
		s.trySend(&wamp.Registered{Request: msg.Request, Registration: regID})
	})
}

func handleUnregister(_ context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Unregister)
	r.enqueue(func() {
		if errURI := r.dealer.unregister(s, msg.Registration); errURI != "" {
			sendError(s, wamp.KindUnregister, msg.Request, errURI)
			return
		}
		s.trySend(&wamp.Unregistered{Request: msg.Request})
	})
}

func handleCall(ctx context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Call)
	if !wamp.ValidURI(msg.Procedure) {
		sendError(s, wamp.KindCall, msg.Request, wamp.ErrInvalidURI)
		return
	}
	dec := r.authorize(ctx, s, auth.ActionCall, msg.Procedure, msg.Options)
	if !dec.Allow {
		sendError(s, wamp.KindCall, msg.Request, dec.Reason)
		return
	}
	r.enqueue(func() {
		if r.metaCall(s, msg) {
			return
		}
		if errURI := r.dealer.call(s, msg, dec.DiscloseAllowed); errURI != "" {
			sendError(s, wamp.KindCall, msg.Request, errURI)
		}
	})
}

func handleCancel(_ context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Cancel)
	r.enqueue(func() { r.dealer.cancel(s, msg) })
}

func handleYield(_ context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Yield)
	r.enqueue(func() { r.dealer.yield(s, msg) })
}

// handleCalleeError accepts a callee's ERROR for an invocation it was
// executing. Any other ERROR from a peer has no meaning to the router
// and is a protocol violation.
func handleCalleeError(_ context.Context, r *realm, s *session, m wamp.Message) {
	msg := m.(*wamp.Error)
	if msg.ErrKind != wamp.KindInvocation {
		s.protocolViolation(r, "unexpected ERROR kind")
		return
	}
	r.enqueue(func() { r.dealer.calleeError(s, msg) })
}

// handleGoodbye performs the peer-initiated graceful close: Closing,
// reclaim, acknowledge, Closed.
func handleGoodbye(ctx context.Context, r *realm, s *session, m wamp.Message) {
	s.setState(stateClosing)
	r.leave(s)
	_ = s.sendDirect(ctx, &wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.ErrGoodbyeAndOut})
	s.kill(wamp.ErrGoodbyeAndOut)
}

// handleGoodbyeAck completes a router-initiated close.
func handleGoodbyeAck(_ context.Context, r *realm, s *session, _ wamp.Message) {
	r.leave(s)
	s.kill(wamp.ErrGoodbyeAndOut)
}

// protocolViolation aborts the session immediately; never retried.
func (s *session) protocolViolation(r *realm, detail string) {
	s.log.Warn("protocol violation, aborting session", "session", uint64(s.id), "detail", detail)
	_ = s.sendDirect(context.Background(), &wamp.Abort{
		Details: wamp.Dict{"message": detail},
		Reason:  wamp.ErrProtocolViolation,
	})
	s.kill(wamp.ErrProtocolViolation)
	r.leave(s)
}

func normalizeMatch(policy string) string {
	if policy == "" {
		return wamp.MatchExact
	}
	return policy
}

func normalizeInvoke(invoke string) string {
	if invoke == "" {
		return wamp.InvokeSingle
	}
	return invoke
}
