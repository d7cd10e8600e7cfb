package router

import (
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wampkit/wampkit/wamp"
)

// registration is one (procedure pattern, match policy) binding with its
// ordered callee list. Deleted when the callee list empties.
type registration struct {
	id        wamp.ID
	procedure wamp.URI
	policy    string
	invoke    string
	callees   []*session
	// rr is the round-robin cursor, advanced once per dispatched call
	// on this registration regardless of interleaving with others.
	rr int
}

func (r *registration) removeCallee(id wamp.ID) {
	for i, c := range r.callees {
		if c.id == id {
			r.callees = append(r.callees[:i], r.callees[i+1:]...)
			if r.rr >= len(r.callees) {
				r.rr = 0
			}
			return
		}
	}
}

// outstandingCall correlates a caller's request with a callee's
// invocation, from CALL receipt to terminal RESULT/ERROR, timeout,
// cancellation, or either session's death.
type outstandingCall struct {
	caller     *session
	callerReq  wamp.ID
	callee     *session
	invocation wamp.ID

	receiveProgress bool
	timer           *clock.Timer
	// killRequested marks a kill-mode cancel: the correlation stays
	// alive until the callee answers the interrupt with an error.
	killRequested bool
}

func (c *outstandingCall) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

type callKey struct {
	session wamp.ID
	request wamp.ID
}

// dealer is the per-realm RPC engine. Every method runs on the realm's
// op goroutine.
type dealer struct {
	log   *slog.Logger
	clock clock.Clock
	// enqueueTimeout re-enters the realm op queue from timer callbacks.
	enqueueTimeout func(invocation wamp.ID)

	idgen  *wamp.ScopeGen
	invGen *wamp.ScopeGen
	rng    *rand.Rand

	registrations map[wamp.ID]*registration
	exact         map[wamp.URI]*registration
	prefix        map[wamp.URI]*registration
	wildcard      map[wamp.URI]*registration
	bySession     map[wamp.ID]map[wamp.ID]*registration

	calls       map[callKey]*outstandingCall
	invocations map[wamp.ID]*outstandingCall
}

func newDealer(log *slog.Logger, clk clock.Clock, enqueueTimeout func(wamp.ID)) *dealer {
	return &dealer{
		log:            log,
		clock:          clk,
		enqueueTimeout: enqueueTimeout,
		idgen:          wamp.NewScopeGen(),
		invGen:         wamp.NewScopeGen(),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		registrations:  make(map[wamp.ID]*registration),
		exact:          make(map[wamp.URI]*registration),
		prefix:         make(map[wamp.URI]*registration),
		wildcard:       make(map[wamp.URI]*registration),
		bySession:      make(map[wamp.ID]map[wamp.ID]*registration),
		calls:          make(map[callKey]*outstandingCall),
		invocations:    make(map[wamp.ID]*outstandingCall),
	}
}

func (d *dealer) index(policy string) map[wamp.URI]*registration {
	switch policy {
	case wamp.MatchPrefix:
		return d.prefix
	case wamp.MatchWildcard:
		return d.wildcard
	}
	return d.exact
}

// register binds the session as a callee for the procedure pattern. A
// pattern already registered admits an additional callee only when both
// the existing and requested invoke policies agree on a shared
// (non-single) policy; otherwise the procedure already exists.
func (d *dealer) register(s *session, procedure wamp.URI, policy, invoke string) (wamp.ID, wamp.URI) {
	idx := d.index(policy)
	if reg, ok := idx[procedure]; ok {
		if reg.invoke == wamp.InvokeSingle || invoke == wamp.InvokeSingle || reg.invoke != invoke {
			return 0, wamp.ErrProcedureAlreadyExists
		}
		for _, c := range reg.callees {
			if c.id == s.id {
				return 0, wamp.ErrProcedureAlreadyExists
			}
		}
		reg.callees = append(reg.callees, s)
		d.indexCallee(s, reg)
		return reg.id, ""
	}

	reg := &registration{
		id:        d.idgen.Next(),
		procedure: procedure,
		policy:    policy,
		invoke:    invoke,
		callees:   []*session{s},
	}
	idx[procedure] = reg
	d.registrations[reg.id] = reg
	d.indexCallee(s, reg)
	return reg.id, ""
}

func (d *dealer) indexCallee(s *session, reg *registration) {
	owned := d.bySession[s.id]
	if owned == nil {
		owned = make(map[wamp.ID]*registration)
		d.bySession[s.id] = owned
	}
	owned[reg.id] = reg
}

// unregister removes the session from the registration's callee list,
// deleting the registration when the list empties.
func (d *dealer) unregister(s *session, regID wamp.ID) wamp.URI {
	reg, ok := d.registrations[regID]
	if !ok {
		return wamp.ErrNoSuchRegistration
	}
	owned := d.bySession[s.id]
	if owned == nil {
		return wamp.ErrNoSuchRegistration
	}
	if _, mine := owned[regID]; !mine {
		return wamp.ErrNoSuchRegistration
	}
	reg.removeCallee(s.id)
	delete(owned, regID)
	if len(owned) == 0 {
		delete(d.bySession, s.id)
	}
	if len(reg.callees) == 0 {
		d.dropRegistration(reg)
	}
	return ""
}

func (d *dealer) dropRegistration(reg *registration) {
	delete(d.registrations, reg.id)
	delete(d.index(reg.policy), reg.procedure)
}

// match selects the registration for a call target: exact wins over
// prefix, the longest matching prefix wins among prefixes, and wildcard
// comes last (most non-empty components first, then lexicographic, so
// selection is deterministic).
func (d *dealer) match(procedure wamp.URI) *registration {
	if reg, ok := d.exact[procedure]; ok {
		return reg
	}
	var best *registration
	for pattern, reg := range d.prefix {
		if !wamp.PrefixMatch(pattern, procedure) {
			continue
		}
		if best == nil || len(pattern) > len(best.procedure) {
			best = reg
		}
	}
	if best != nil {
		return best
	}
	for pattern, reg := range d.wildcard {
		if !wamp.WildcardMatch(pattern, procedure) {
			continue
		}
		if best == nil || moreSpecific(pattern, best.procedure) {
			best = reg
		}
	}
	return best
}

func moreSpecific(a, b wamp.URI) bool {
	na, nb := nonEmptyComponents(a), nonEmptyComponents(b)
	if na != nb {
		return na > nb
	}
	return a < b
}

func nonEmptyComponents(u wamp.URI) int {
	n := 0
	for _, c := range strings.Split(string(u), ".") {
		if c != "" {
			n++
		}
	}
	return n
}

// call routes one CALL to a callee selected by the registration's
// invoke policy, records the correlation under a fresh invocation id,
// and arms the timeout timer if requested. The callee never sees the
// caller's request id.
func (d *dealer) call(caller *session, msg *wamp.Call, discloseAllowed bool) wamp.URI {
	reg := d.match(msg.Procedure)
	if reg == nil {
		return wamp.ErrNoSuchProcedure
	}

	callee, errURI := d.selectCallee(reg)
	if errURI != "" {
		return errURI
	}

	invID := d.invGen.Next()
	oc := &outstandingCall{
		caller:          caller,
		callerReq:       msg.Request,
		callee:          callee,
		invocation:      invID,
		receiveProgress: msg.Options.Bool("receive_progress", false),
	}
	d.calls[callKey{caller.id, msg.Request}] = oc
	d.invocations[invID] = oc

	if timeoutMS := msg.Options.Int64("timeout"); timeoutMS > 0 {
		oc.timer = d.clock.AfterFunc(time.Duration(timeoutMS)*time.Millisecond, func() {
			d.enqueueTimeout(invID)
		})
	}

	details := wamp.Dict{}
	if reg.policy != wamp.MatchExact {
		details["procedure"] = msg.Procedure
	}
	if oc.receiveProgress {
		details["receive_progress"] = true
	}
	if msg.Options.Bool("disclose_me", false) && discloseAllowed {
		details["caller"] = caller.id
		details["caller_authid"] = caller.identity.AuthID
		details["caller_authrole"] = caller.identity.AuthRole
	}

	callee.trySend(&wamp.Invocation{
		Request:      invID,
		Registration: reg.id,
		Details:      details,
		Args:         msg.Args,
		Kwargs:       msg.Kwargs,
	})
	return ""
}

func (d *dealer) selectCallee(reg *registration) (*session, wamp.URI) {
	switch reg.invoke {
	case "", wamp.InvokeSingle:
		if len(reg.callees) != 1 {
			return nil, wamp.ErrNoSuchProcedure
		}
		return reg.callees[0], ""
	case wamp.InvokeFirst:
		return reg.callees[0], ""
	case wamp.InvokeLast:
		return reg.callees[len(reg.callees)-1], ""
	case wamp.InvokeRandom:
		return reg.callees[d.rng.Intn(len(reg.callees))], ""
	case wamp.InvokeRoundRobin:
		callee := reg.callees[reg.rr%len(reg.callees)]
		reg.rr = (reg.rr + 1) % len(reg.callees)
		return callee, ""
	}
	return nil, wamp.ErrOptionNotAllowed
}

// yield forwards a callee's result to the caller. Progressive yields
// keep the correlation alive; terminal yields retire it. A yield
// against an unknown or finished invocation is a callee bug: logged,
// dropped, never a realm fault.
func (d *dealer) yield(callee *session, msg *wamp.Yield) {
	oc, ok := d.invocations[msg.Request]
	if !ok || oc.callee.id != callee.id {
		d.log.Debug("yield for unknown invocation", "session", uint64(callee.id), "invocation", uint64(msg.Request))
		return
	}

	if msg.Options.Bool("progress", false) {
		if !oc.receiveProgress {
			d.log.Debug("progressive yield dropped, caller did not request progress", "invocation", uint64(msg.Request))
			return
		}
		oc.caller.trySend(&wamp.Result{
			Request: oc.callerReq,
			Details: wamp.Dict{"progress": true},
			Args:    msg.Args,
			Kwargs:  msg.Kwargs,
		})
		return
	}

	d.retire(oc)
	oc.caller.trySend(&wamp.Result{
		Request: oc.callerReq,
		Details: wamp.Dict{},
		Args:    msg.Args,
		Kwargs:  msg.Kwargs,
	})
}

// calleeError forwards a callee's ERROR for an invocation back to the
// caller and retires the correlation.
func (d *dealer) calleeError(callee *session, msg *wamp.Error) {
	oc, ok := d.invocations[msg.Request]
	if !ok || oc.callee.id != callee.id {
		d.log.Debug("error for unknown invocation", "session", uint64(callee.id), "invocation", uint64(msg.Request))
		return
	}
	d.retire(oc)
	oc.caller.trySend(&wamp.Error{
		ErrKind: wamp.KindCall,
		Request: oc.callerReq,
		Details: msg.Details,
		Error:   msg.Error,
		Args:    msg.Args,
		Kwargs:  msg.Kwargs,
	})
}

// cancel handles a caller-initiated CANCEL. skip answers the caller
// immediately without touching the callee; killnowait additionally
// interrupts the callee; kill interrupts the callee and leaves the
// correlation alive until the callee's error comes back.
func (d *dealer) cancel(caller *session, msg *wamp.Cancel) {
	oc, ok := d.calls[callKey{caller.id, msg.Request}]
	if !ok {
		d.log.Debug("cancel for unknown call", "session", uint64(caller.id), "request", uint64(msg.Request))
		return
	}

	mode := msg.Options.String("mode")
	switch mode {
	case "kill":
		if oc.killRequested {
			return
		}
		oc.killRequested = true
		oc.callee.trySend(&wamp.Interrupt{Request: oc.invocation, Options: wamp.Dict{"mode": mode}})
		return
	case "skip":
		d.retire(oc)
	default: // killnowait
		d.retire(oc)
		oc.callee.trySend(&wamp.Interrupt{Request: oc.invocation, Options: wamp.Dict{"mode": "killnowait"}})
	}
	oc.caller.trySend(&wamp.Error{
		ErrKind: wamp.KindCall,
		Request: oc.callerReq,
		Details: wamp.Dict{},
		Error:   wamp.ErrCanceled,
	})
}

// timeout retires an overdue invocation: exactly one timeout error to
// the caller, at most one advisory interrupt to the callee.
func (d *dealer) timeout(invocation wamp.ID) {
	oc, ok := d.invocations[invocation]
	if !ok {
		return
	}
	d.retire(oc)
	oc.caller.trySend(&wamp.Error{
		ErrKind: wamp.KindCall,
		Request: oc.callerReq,
		Details: wamp.Dict{},
		Error:   wamp.ErrTimeout,
	})
	oc.callee.trySend(&wamp.Interrupt{Request: oc.invocation, Options: wamp.Dict{"mode": "killnowait"}})
}

func (d *dealer) retire(oc *outstandingCall) {
	oc.stopTimer()
	delete(d.calls, callKey{oc.caller.id, oc.callerReq})
	delete(d.invocations, oc.invocation)
}

// removeSession reclaims everything the session owns: its callee slots
// (deleting emptied registrations), the calls it initiated (advisory
// interrupt to the callee), and the invocations it was executing
// (callee-gone error to each caller).
func (d *dealer) removeSession(s *session) {
	for _, reg := range d.bySession[s.id] {
		reg.removeCallee(s.id)
		if len(reg.callees) == 0 {
			d.dropRegistration(reg)
		}
	}
	delete(d.bySession, s.id)

	for _, oc := range d.invocations {
		switch s.id {
		case oc.caller.id:
			d.retire(oc)
			oc.callee.trySend(&wamp.Interrupt{Request: oc.invocation, Options: wamp.Dict{"mode": "killnowait"}})
		case oc.callee.id:
			d.retire(oc)
			oc.caller.trySend(&wamp.Error{
				ErrKind: wamp.KindCall,
				Request: oc.callerReq,
				Details: wamp.Dict{},
				Error:   wamp.ErrCalleeGone,
			})
		}
	}
}

// sessionRegistrations lists the ids of registrations the session is a
// callee of.
func (d *dealer) sessionRegistrations(s *session) []wamp.ID {
	out := make([]wamp.ID, 0, len(d.bySession[s.id]))
	for id := range d.bySession[s.id] {
		out = append(out, id)
	}
	return out
}

// listIDs returns all registration ids grouped by match policy, for the
// registration meta procedure.
func (d *dealer) listIDs() wamp.Dict {
	group := func(idx map[wamp.URI]*registration) []wamp.ID {
		ids := make([]wamp.ID, 0, len(idx))
		for _, reg := range idx {
			ids = append(ids, reg.id)
		}
		return ids
	}
	return wamp.Dict{
		"exact":    group(d.exact),
		"prefix":   group(d.prefix),
		"wildcard": group(d.wildcard),
	}
}
