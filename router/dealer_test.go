package router

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wampkit/wampkit/wamp"
)

// newTestDealer wires the timeout callback straight back into the
// dealer so the mock clock drives timeouts synchronously.
func newTestDealer(t *testing.T) (*dealer, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	var d *dealer
	d = newDealer(testLogger(), mock, func(inv wamp.ID) { d.timeout(inv) })
	return d, mock
}

func takeInvocation(t *testing.T, s *session) *wamp.Invocation {
	t.Helper()
	msg := takeOut(t, s)
	inv, ok := msg.(*wamp.Invocation)
	if !ok {
		t.Fatalf("session %d: got %s, want INVOCATION", s.id, msg.Kind())
	}
	return inv
}

func takeResult(t *testing.T, s *session) *wamp.Result {
	t.Helper()
	msg := takeOut(t, s)
	res, ok := msg.(*wamp.Result)
	if !ok {
		t.Fatalf("session %d: got %s, want RESULT", s.id, msg.Kind())
	}
	return res
}

func takeError(t *testing.T, s *session, want wamp.URI) *wamp.Error {
	t.Helper()
	msg := takeOut(t, s)
	e, ok := msg.(*wamp.Error)
	if !ok {
		t.Fatalf("session %d: got %s, want ERROR", s.id, msg.Kind())
	}
	if e.Error != want {
		t.Fatalf("error uri = %q, want %q", e.Error, want)
	}
	return e
}

func takeInterrupt(t *testing.T, s *session) *wamp.Interrupt {
	t.Helper()
	msg := takeOut(t, s)
	intr, ok := msg.(*wamp.Interrupt)
	if !ok {
		t.Fatalf("session %d: got %s, want INTERRUPT", s.id, msg.Kind())
	}
	return intr
}

func TestDealerCallYieldRoundTrip(t *testing.T) {
	d, _ := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")

	regID, errURI := d.register(callee, "com.myapp.add", wamp.MatchExact, wamp.InvokeSingle)
	if errURI != "" {
		t.Fatalf("register: %s", errURI)
	}

	if errURI := d.call(caller, &wamp.Call{Request: 41, Options: wamp.Dict{}, Procedure: "com.myapp.add", Args: []any{1, 2}}, false); errURI != "" {
		t.Fatalf("call: %s", errURI)
	}

	inv := takeInvocation(t, callee)
	if inv.Registration != regID {
		t.Fatalf("invocation registration = %d, want %d", inv.Registration, regID)
	}
	if inv.Request == 41 {
		t.Fatal("invocation id must not leak the caller's request id")
	}

	d.yield(callee, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{}, Args: []any{3}})
	res := takeResult(t, caller)
	if res.Request != 41 {
		t.Fatalf("result request = %d, want 41", res.Request)
	}
	if len(res.Args) != 1 || res.Args[0] != 3 {
		t.Fatalf("result args = %v", res.Args)
	}

	// The correlation is retired: a second yield is a callee bug and is
	// dropped without reaching the caller.
	d.yield(callee, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{}})
	wantNoOut(t, caller)
	if len(d.calls) != 0 || len(d.invocations) != 0 {
		t.Fatal("correlation maps must be empty after terminal yield")
	}
}

func TestDealerNoSuchProcedure(t *testing.T) {
	d, _ := newTestDealer(t)
	caller := newTestSession(t, 1, "alice", "user")
	if errURI := d.call(caller, &wamp.Call{Request: 1, Options: wamp.Dict{}, Procedure: "com.myapp.nope"}, false); errURI != wamp.ErrNoSuchProcedure {
		t.Fatalf("call = %q, want %q", errURI, wamp.ErrNoSuchProcedure)
	}
}

func TestDealerCalleeErrorForwarded(t *testing.T) {
	d, _ := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")
	d.register(callee, "com.myapp.fail", wamp.MatchExact, wamp.InvokeSingle)
	d.call(caller, &wamp.Call{Request: 7, Options: wamp.Dict{}, Procedure: "com.myapp.fail"}, false)
	inv := takeInvocation(t, callee)

	d.calleeError(callee, &wamp.Error{
		ErrKind: wamp.KindInvocation,
		Request: inv.Request,
		Details: wamp.Dict{},
		Error:   wamp.ErrInvalidArgument,
		Args:    []any{"bad input"},
	})
	e := takeError(t, caller, wamp.ErrInvalidArgument)
	if e.Request != 7 {
		t.Fatalf("error request = %d, want 7", e.Request)
	}
	if e.ErrKind != wamp.KindCall {
		t.Fatalf("error kind = %s, want CALL", e.ErrKind)
	}
}

func TestDealerCallTimeout(t *testing.T) {
	d, mock := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")
	d.register(callee, "com.myapp.slow", wamp.MatchExact, wamp.InvokeSingle)
	d.call(caller, &wamp.Call{Request: 9, Options: wamp.Dict{"timeout": float64(250)}, Procedure: "com.myapp.slow"}, false)
	inv := takeInvocation(t, callee)

	mock.Add(200 * time.Millisecond)
	wantNoOut(t, caller)

	mock.Add(100 * time.Millisecond)
	e := takeError(t, caller, wamp.ErrTimeout)
	if e.Request != 9 {
		t.Fatalf("timeout error request = %d, want 9", e.Request)
	}
	takeInterrupt(t, callee)

	// A late yield after the deadline is dropped.
	d.yield(callee, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{}, Args: []any{"late"}})
	wantNoOut(t, caller)

	// The timer must not fire twice.
	mock.Add(time.Second)
	wantNoOut(t, caller)
	wantNoOut(t, callee)
}

func TestDealerTimeoutDisarmedByResult(t *testing.T) {
	d, mock := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")
	d.register(callee, "com.myapp.quick", wamp.MatchExact, wamp.InvokeSingle)
	d.call(caller, &wamp.Call{Request: 5, Options: wamp.Dict{"timeout": float64(100)}, Procedure: "com.myapp.quick"}, false)
	inv := takeInvocation(t, callee)
	d.yield(callee, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{}})
	takeResult(t, caller)

	mock.Add(time.Second)
	wantNoOut(t, caller)
	wantNoOut(t, callee)
}

func TestDealerCancelModes(t *testing.T) {
	d, _ := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")
	d.register(callee, "com.myapp.job", wamp.MatchExact, wamp.InvokeRoundRobin)

	// skip: caller answered immediately, callee never hears about it.
	d.call(caller, &wamp.Call{Request: 1, Options: wamp.Dict{}, Procedure: "com.myapp.job"}, false)
	takeInvocation(t, callee)
	d.cancel(caller, &wamp.Cancel{Request: 1, Options: wamp.Dict{"mode": "skip"}})
	takeError(t, caller, wamp.ErrCanceled)
	wantNoOut(t, callee)

	// killnowait: caller answered immediately, callee interrupted.
	d.call(caller, &wamp.Call{Request: 2, Options: wamp.Dict{}, Procedure: "com.myapp.job"}, false)
	takeInvocation(t, callee)
	d.cancel(caller, &wamp.Cancel{Request: 2, Options: wamp.Dict{"mode": "killnowait"}})
	takeError(t, caller, wamp.ErrCanceled)
	takeInterrupt(t, callee)

	// kill: callee interrupted, caller waits for the callee's error.
	d.call(caller, &wamp.Call{Request: 3, Options: wamp.Dict{}, Procedure: "com.myapp.job"}, false)
	inv := takeInvocation(t, callee)
	d.cancel(caller, &wamp.Cancel{Request: 3, Options: wamp.Dict{"mode": "kill"}})
	takeInterrupt(t, callee)
	wantNoOut(t, caller)
	d.calleeError(callee, &wamp.Error{ErrKind: wamp.KindInvocation, Request: inv.Request, Details: wamp.Dict{}, Error: wamp.ErrCanceled})
	takeError(t, caller, wamp.ErrCanceled)
}

func TestDealerRoundRobin(t *testing.T) {
	d, _ := newTestDealer(t)
	caller := newTestSession(t, 10, "alice", "user")
	workers := []*session{
		newTestSession(t, 1, "w1", "service"),
		newTestSession(t, 2, "w2", "service"),
		newTestSession(t, 3, "w3", "service"),
	}
	for _, w := range workers {
		if _, errURI := d.register(w, "com.myapp.work", wamp.MatchExact, wamp.InvokeRoundRobin); errURI != "" {
			t.Fatalf("register %d: %s", w.id, errURI)
		}
	}

	order := []int{0, 1, 2, 0}
	for i, want := range order {
		d.call(caller, &wamp.Call{Request: wamp.ID(100 + i), Options: wamp.Dict{}, Procedure: "com.myapp.work"}, false)
		inv := takeInvocation(t, workers[want])
		for j, w := range workers {
			if j != want {
				wantNoOut(t, w)
			}
		}
		d.yield(workers[want], &wamp.Yield{Request: inv.Request, Options: wamp.Dict{}})
		takeResult(t, caller)
	}
}

func TestDealerRegistrationConflicts(t *testing.T) {
	d, _ := newTestDealer(t)
	a := newTestSession(t, 1, "a", "service")
	b := newTestSession(t, 2, "b", "service")

	if _, errURI := d.register(a, "com.myapp.solo", wamp.MatchExact, wamp.InvokeSingle); errURI != "" {
		t.Fatalf("register: %s", errURI)
	}
	if _, errURI := d.register(b, "com.myapp.solo", wamp.MatchExact, wamp.InvokeSingle); errURI != wamp.ErrProcedureAlreadyExists {
		t.Fatalf("second single register = %q, want %q", errURI, wamp.ErrProcedureAlreadyExists)
	}

	regA, _ := d.register(a, "com.myapp.pool", wamp.MatchExact, wamp.InvokeRoundRobin)
	if _, errURI := d.register(b, "com.myapp.pool", wamp.MatchExact, wamp.InvokeFirst); errURI != wamp.ErrProcedureAlreadyExists {
		t.Fatalf("mismatched shared policy = %q, want %q", errURI, wamp.ErrProcedureAlreadyExists)
	}
	regB, errURI := d.register(b, "com.myapp.pool", wamp.MatchExact, wamp.InvokeRoundRobin)
	if errURI != "" {
		t.Fatalf("matching shared register: %s", errURI)
	}
	if regA != regB {
		t.Fatalf("shared registration ids differ: %d vs %d", regA, regB)
	}
}

func TestDealerPatternPrecedence(t *testing.T) {
	d, _ := newTestDealer(t)
	exact := newTestSession(t, 1, "a", "service")
	longPrefix := newTestSession(t, 2, "b", "service")
	shortPrefix := newTestSession(t, 3, "c", "service")
	wild := newTestSession(t, 4, "d", "service")
	caller := newTestSession(t, 5, "alice", "user")

	d.register(exact, "com.myapp.user.get", wamp.MatchExact, wamp.InvokeSingle)
	d.register(longPrefix, "com.myapp.user", wamp.MatchPrefix, wamp.InvokeSingle)
	d.register(shortPrefix, "com.myapp", wamp.MatchPrefix, wamp.InvokeSingle)
	d.register(wild, "com.myapp..get", wamp.MatchWildcard, wamp.InvokeSingle)

	d.call(caller, &wamp.Call{Request: 1, Options: wamp.Dict{}, Procedure: "com.myapp.user.get"}, false)
	takeInvocation(t, exact)

	d.call(caller, &wamp.Call{Request: 2, Options: wamp.Dict{}, Procedure: "com.myapp.user.list"}, false)
	inv := takeInvocation(t, longPrefix)
	if got := inv.Details["procedure"]; got != wamp.URI("com.myapp.user.list") {
		t.Fatalf("procedure detail = %v, want concrete procedure", got)
	}

	d.call(caller, &wamp.Call{Request: 3, Options: wamp.Dict{}, Procedure: "com.myapp.billing"}, false)
	takeInvocation(t, shortPrefix)
	wantNoOut(t, wild)
}

func TestDealerProgressiveResults(t *testing.T) {
	d, _ := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")
	d.register(callee, "com.myapp.stream", wamp.MatchExact, wamp.InvokeSingle)

	d.call(caller, &wamp.Call{Request: 1, Options: wamp.Dict{"receive_progress": true}, Procedure: "com.myapp.stream"}, false)
	inv := takeInvocation(t, callee)
	if inv.Details["receive_progress"] != true {
		t.Fatal("invocation must announce receive_progress")
	}

	d.yield(callee, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{"progress": true}, Args: []any{"chunk-1"}})
	res := takeResult(t, caller)
	if res.Details.Bool("progress", false) != true {
		t.Fatal("progressive result must carry progress detail")
	}

	d.yield(callee, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{}, Args: []any{"done"}})
	res = takeResult(t, caller)
	if res.Details.Bool("progress", false) {
		t.Fatal("terminal result must not carry progress detail")
	}
	if len(d.invocations) != 0 {
		t.Fatal("correlation must be retired after terminal yield")
	}
}

func TestDealerProgressNotRequestedDropped(t *testing.T) {
	d, _ := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")
	d.register(callee, "com.myapp.stream", wamp.MatchExact, wamp.InvokeSingle)
	d.call(caller, &wamp.Call{Request: 1, Options: wamp.Dict{}, Procedure: "com.myapp.stream"}, false)
	inv := takeInvocation(t, callee)

	d.yield(callee, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{"progress": true}, Args: []any{"chunk"}})
	wantNoOut(t, caller)
}

func TestDealerRemoveSessionCalleeSide(t *testing.T) {
	d, _ := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")
	d.register(callee, "com.myapp.job", wamp.MatchExact, wamp.InvokeSingle)
	d.call(caller, &wamp.Call{Request: 1, Options: wamp.Dict{}, Procedure: "com.myapp.job"}, false)
	takeInvocation(t, callee)

	d.removeSession(callee)
	takeError(t, caller, wamp.ErrCalleeGone)
	if len(d.registrations) != 0 {
		t.Fatal("dead callee's registration must be dropped")
	}
	if errURI := d.call(caller, &wamp.Call{Request: 2, Options: wamp.Dict{}, Procedure: "com.myapp.job"}, false); errURI != wamp.ErrNoSuchProcedure {
		t.Fatalf("call after callee death = %q, want %q", errURI, wamp.ErrNoSuchProcedure)
	}
}

func TestDealerRemoveSessionCallerSide(t *testing.T) {
	d, _ := newTestDealer(t)
	callee := newTestSession(t, 1, "svc", "service")
	caller := newTestSession(t, 2, "alice", "user")
	d.register(callee, "com.myapp.job", wamp.MatchExact, wamp.InvokeSingle)
	d.call(caller, &wamp.Call{Request: 1, Options: wamp.Dict{}, Procedure: "com.myapp.job"}, false)
	inv := takeInvocation(t, callee)

	d.removeSession(caller)
	takeInterrupt(t, callee)
	if len(d.calls) != 0 || len(d.invocations) != 0 {
		t.Fatal("dead caller's correlations must be retired")
	}

	// The orphaned yield goes nowhere.
	d.yield(callee, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{}})
	wantNoOut(t, caller)
}
