package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wampkit/wampkit/auth"
	"github.com/wampkit/wampkit/history"
	"github.com/wampkit/wampkit/wamp"
)

// Meta topics and procedures served by every realm.
const (
	metaOnJoin  wamp.URI = "wamp.session.on_join"
	metaOnLeave wamp.URI = "wamp.session.on_leave"

	metaSessionCount     wamp.URI = "wamp.session.count"
	metaSessionList      wamp.URI = "wamp.session.list"
	metaSessionGet       wamp.URI = "wamp.session.get"
	metaSubscriptionList wamp.URI = "wamp.subscription.list"
	metaRegistrationList wamp.URI = "wamp.registration.list"
	metaHistoryLast      wamp.URI = "wamp.topic.history.last"
)

// realm is one isolated routing domain: a session registry, a broker,
// and a dealer, all mutated through a single op queue so every routing
// decision within the realm happens in one total order. Different
// realms run fully independently.
type realm struct {
	name       wamp.URI
	log        *slog.Logger
	clock      clock.Clock
	authorizer auth.Authorizer
	hist       history.Store

	ops  chan func()
	done chan struct{}

	closeOnce sync.Once

	// idleAfter, when positive, closes the realm once it has been empty
	// for that long.
	idleAfter time.Duration

	// Everything below is owned by the op goroutine.
	sessions  map[wamp.ID]*session
	broker    *broker
	dealer    *dealer
	idleTimer *clock.Timer

	// onClosed is invoked once after the realm has torn down, so the
	// router can unregister it (used for invariant-violation teardown).
	onClosed func(*realm)
}

func newRealm(name wamp.URI, log *slog.Logger, clk clock.Clock, authorizer auth.Authorizer, hist history.Store, idleAfter time.Duration, onClosed func(*realm)) *realm {
	r := &realm{
		name:       name,
		log:        log.With("realm", string(name)),
		clock:      clk,
		authorizer: authorizer,
		hist:       hist,
		idleAfter:  idleAfter,
		ops:        make(chan func(), 128),
		done:       make(chan struct{}),
		sessions:   make(map[wamp.ID]*session),
		onClosed:   onClosed,
	}
	r.broker = newBroker(r.log)
	r.dealer = newDealer(r.log, clk, func(inv wamp.ID) {
		r.enqueue(func() { r.dealer.timeout(inv) })
	})
	go r.run()
	if idleAfter > 0 {
		r.enqueue(func() { r.scheduleIdleCheck() })
	}
	return r
}

// scheduleIdleCheck arms the empty-realm timer. Op goroutine only.
func (r *realm) scheduleIdleCheck() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.idleTimer = r.clock.AfterFunc(r.idleAfter, func() {
		r.enqueue(func() {
			if len(r.sessions) > 0 {
				return
			}
			r.log.Info("closing idle realm")
			go r.close(wamp.ErrCloseRealm)
		})
	})
}

// run applies ops one at a time. This loop is the realm's serialization
// point: it must never block on a session's outbound queue (trySend
// never blocks) nor on an authorizer (authorization completes before
// the op is enqueued).
func (r *realm) run() {
	for {
		select {
		case op := <-r.ops:
			op()
		case <-r.done:
			return
		}
	}
}

// enqueue queues an op for the realm goroutine. Returns false when the
// realm is closed; callers treat that as the realm being gone.
func (r *realm) enqueue(op func()) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.ops <- op:
		return true
	case <-r.done:
		return false
	}
}

// enqueueWait runs op on the realm goroutine and blocks the caller
// until it completes. Used by the session read loops, which may block;
// never call from the op goroutine itself.
func (r *realm) enqueueWait(op func()) bool {
	donech := make(chan struct{})
	if !r.enqueue(func() {
		op()
		close(donech)
	}) {
		return false
	}
	select {
	case <-donech:
		return true
	case <-r.done:
		return false
	}
}

// close tears the realm down: every session is aborted with the given
// reason and the op loop stops. Safe to call repeatedly.
func (r *realm) close(reason wamp.URI) {
	r.closeOnce.Do(func() {
		r.enqueue(func() {
			for _, s := range r.sessions {
				s.trySend(&wamp.Goodbye{Details: wamp.Dict{}, Reason: reason})
				s.kill(reason)
				r.broker.removeSession(s)
				r.dealer.removeSession(s)
			}
			r.sessions = make(map[wamp.ID]*session)
			close(r.done)
			if r.onClosed != nil {
				r.onClosed(r)
			}
		})
	})
}

// fail is the invariant-violation escape hatch: rather than risk
// silently incorrect routing the whole realm is torn down and every
// session aborted.
func (r *realm) fail(msg string, args ...any) {
	r.log.Error("realm invariant violation, tearing down: "+msg, args...)
	go r.close(wamp.ErrCloseRealm)
}

// join registers an established session and announces it on the
// session meta topic. Returns false if the realm is closed.
func (r *realm) join(s *session) bool {
	return r.enqueueWait(func() {
		if _, dup := r.sessions[s.id]; dup {
			// Global ids make this effectively impossible; treat it as
			// corruption rather than routing two peers under one id.
			r.fail("duplicate session id", "session", uint64(s.id))
			return
		}
		r.sessions[s.id] = s
		if r.idleTimer != nil {
			r.idleTimer.Stop()
			r.idleTimer = nil
		}
		r.publishMeta(metaOnJoin, []any{wamp.Dict{
			"session":    s.id,
			"authid":     s.identity.AuthID,
			"authrole":   s.identity.AuthRole,
			"authmethod": s.identity.AuthMethod,
		}}, s.id)
	})
}

// leave reclaims everything the session owns. Exactly-once by
// construction: the first leave op removes the session from the
// registry, and every later call finds it gone and does nothing.
func (r *realm) leave(s *session) {
	r.enqueue(func() {
		if _, ok := r.sessions[s.id]; !ok {
			return
		}
		delete(r.sessions, s.id)
		r.broker.removeSession(s)
		r.dealer.removeSession(s)
		r.publishMeta(metaOnLeave, []any{s.id, s.identity.AuthID, s.identity.AuthRole}, s.id)
		if r.idleAfter > 0 && len(r.sessions) == 0 {
			r.scheduleIdleCheck()
		}
	})
}

// publishMeta fans a router-generated event out through the broker. The
// subject session is excluded so a session never observes its own join
// or leave.
func (r *realm) publishMeta(topic wamp.URI, args []any, exclude wamp.ID) {
	msg := &wamp.Publish{
		Options: wamp.Dict{"exclude": []wamp.ID{exclude}},
		Topic:   topic,
		Args:    args,
	}
	r.broker.publish(nil, msg, false)
}

// appendHistory retains a routed publication in the configured history
// store. Runs off the op goroutine; a failing store never slows or
// fails routing.
func (r *realm) appendHistory(pubID wamp.ID, msg *wamp.Publish) {
	if r.hist == nil {
		return
	}
	ev := history.Event{
		Publication: pubID,
		Topic:       msg.Topic,
		Args:        msg.Args,
		Kwargs:      msg.Kwargs,
		Timestamp:   time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.hist.Append(ctx, string(r.name), msg.Topic, ev); err != nil {
			r.log.Warn("history append failed", "topic", string(msg.Topic), "err", err)
		}
	}()
}

// authorize runs the realm's authorizer for one operation. Called from
// the session's read goroutine, so a slow authorizer suspends only the
// session awaiting the decision; the routing op is enqueued afterwards.
func (r *realm) authorize(ctx context.Context, s *session, action auth.Action, resource wamp.URI, options wamp.Dict) auth.Decision {
	if r.authorizer == nil {
		return auth.Allow
	}
	dec, err := r.authorizer.Authorize(ctx, &s.identity, action, resource, options)
	if err != nil {
		r.log.WarnContext(ctx, "authorizer error, denying", "action", string(action), "resource", string(resource), "err", err)
		return auth.Denied(wamp.ErrAuthorizationFailed)
	}
	if !dec.Allow && dec.Reason == "" {
		dec.Reason = wamp.ErrNotAuthorized
	}
	return dec
}

// metaCall serves the realm's built-in procedures. Returns handled =
// false when the target is not a meta procedure. Runs on the op
// goroutine except for history reads, which answer asynchronously.
func (r *realm) metaCall(s *session, msg *wamp.Call) bool {
	switch msg.Procedure {
	case metaSessionCount:
		s.trySend(&wamp.Result{Request: msg.Request, Args: []any{len(r.sessions)}})
	case metaSessionList:
		ids := make([]any, 0, len(r.sessions))
		for id := range r.sessions {
			ids = append(ids, id)
		}
		s.trySend(&wamp.Result{Request: msg.Request, Args: []any{ids}})
	case metaSessionGet:
		r.metaSessionGet(s, msg)
	case metaSubscriptionList:
		s.trySend(&wamp.Result{Request: msg.Request, Args: []any{r.broker.listIDs()}})
	case metaRegistrationList:
		s.trySend(&wamp.Result{Request: msg.Request, Args: []any{r.dealer.listIDs()}})
	case metaHistoryLast:
		r.metaHistoryLast(s, msg)
	default:
		return false
	}
	return true
}

func (r *realm) metaSessionGet(s *session, msg *wamp.Call) {
	if len(msg.Args) < 1 {
		s.trySend(&wamp.Error{ErrKind: wamp.KindCall, Request: msg.Request, Error: wamp.ErrInvalidArgument})
		return
	}
	var target wamp.ID
	switch v := msg.Args[0].(type) {
	case wamp.ID:
		target = v
	case float64:
		target = wamp.ID(v)
	case int:
		target = wamp.ID(v)
	case int64:
		target = wamp.ID(v)
	default:
		s.trySend(&wamp.Error{ErrKind: wamp.KindCall, Request: msg.Request, Error: wamp.ErrInvalidArgument})
		return
	}
	sess, ok := r.sessions[target]
	if !ok {
		s.trySend(&wamp.Error{ErrKind: wamp.KindCall, Request: msg.Request, Error: wamp.URI("wamp.error.no_such_session")})
		return
	}
	s.trySend(&wamp.Result{Request: msg.Request, Args: []any{wamp.Dict{
		"session":    sess.id,
		"authid":     sess.identity.AuthID,
		"authrole":   sess.identity.AuthRole,
		"authmethod": sess.identity.AuthMethod,
	}}})
}

// metaHistoryLast reads retained events off the op goroutine: the store
// may be remote (Redis) and must not stall routing.
func (r *realm) metaHistoryLast(s *session, msg *wamp.Call) {
	if r.hist == nil {
		s.trySend(&wamp.Error{ErrKind: wamp.KindCall, Request: msg.Request, Error: wamp.ErrNoSuchProcedure})
		return
	}
	if len(msg.Args) < 1 {
		s.trySend(&wamp.Error{ErrKind: wamp.KindCall, Request: msg.Request, Error: wamp.ErrInvalidArgument})
		return
	}
	topicStr, ok := msg.Args[0].(string)
	if !ok {
		s.trySend(&wamp.Error{ErrKind: wamp.KindCall, Request: msg.Request, Error: wamp.ErrInvalidArgument})
		return
	}
	limit := 1
	if len(msg.Args) > 1 {
		if n, ok := msg.Args[1].(float64); ok && n > 0 {
			limit = int(n)
		} else if n, ok := msg.Args[1].(int); ok && n > 0 {
			limit = n
		}
	}
	hist, realmName, request := r.hist, string(r.name), msg.Request
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events, err := hist.Last(ctx, realmName, wamp.URI(topicStr), limit)
		if err != nil {
			r.log.Warn("history read failed", "topic", topicStr, "err", err)
			s.trySend(&wamp.Error{ErrKind: wamp.KindCall, Request: request, Error: wamp.URI("wamp.error.history_unavailable")})
			return
		}
		args := make([]any, 0, len(events))
		for _, ev := range events {
			args = append(args, wamp.Dict{
				"publication": ev.Publication,
				"topic":       ev.Topic,
				"args":        ev.Args,
				"kwargs":      ev.Kwargs,
				"timestamp":   ev.Timestamp.Format(time.RFC3339Nano),
			})
		}
		s.trySend(&wamp.Result{Request: request, Args: args})
	}()
}
