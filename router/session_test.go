package router

import (
	"context"
	"testing"
	"time"

	"github.com/wampkit/wampkit/auth"
	"github.com/wampkit/wampkit/transport/local"
	"github.com/wampkit/wampkit/wamp"
)

func TestSessionQueueOverflowKills(t *testing.T) {
	_, server := local.PipeBuffered(1)
	s := newSession(1, auth.Identity{AuthID: "alice"}, server, 2, testLogger())
	s.setState(stateEstablished)

	s.trySend(&wamp.Published{Request: 1})
	s.trySend(&wamp.Published{Request: 2})
	if s.getState() != stateEstablished {
		t.Fatalf("state = %s after fills within bound, want established", s.getState())
	}

	// Third message overflows the bounded queue: the session is treated
	// as disconnected, not stalled.
	s.trySend(&wamp.Published{Request: 3})
	if s.getState() != stateClosed {
		t.Fatalf("state = %s after overflow, want closed", s.getState())
	}
	if s.killReason() != wamp.ErrNetworkFailure {
		t.Fatalf("kill reason = %s, want %s", s.killReason(), wamp.ErrNetworkFailure)
	}

	select {
	case <-s.quit:
	default:
		t.Fatal("quit channel must be closed after kill")
	}
}

func TestSessionKillIdempotent(t *testing.T) {
	_, server := local.Pipe()
	s := newSession(1, auth.Identity{}, server, 4, testLogger())

	s.kill(wamp.ErrProtocolViolation)
	s.kill(wamp.ErrNetworkFailure)
	s.kill(wamp.ErrGoodbyeAndOut)

	if s.killReason() != wamp.ErrProtocolViolation {
		t.Fatalf("kill reason = %s, want the first reason to win", s.killReason())
	}
}

func TestSessionTrySendAfterKillDropped(t *testing.T) {
	_, server := local.Pipe()
	s := newSession(1, auth.Identity{}, server, 4, testLogger())
	s.kill(wamp.ErrNetworkFailure)

	s.trySend(&wamp.Published{Request: 1})
	select {
	case m := <-s.out:
		t.Fatalf("message %s queued after kill", m.Kind())
	default:
	}
}

func TestSessionWriteLoopDrainsQueue(t *testing.T) {
	client, server := local.Pipe()
	s := newSession(1, auth.Identity{}, server, 8, testLogger())
	s.setState(stateEstablished)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.writeLoop(ctx)

	s.trySend(&wamp.Published{Request: 1})
	s.trySend(&wamp.Published{Request: 2})

	for want := wamp.ID(1); want <= 2; want++ {
		msg, err := client.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		pub, ok := msg.(*wamp.Published)
		if !ok || pub.Request != want {
			t.Fatalf("got %v, want PUBLISHED request %d", msg, want)
		}
	}

	s.kill(wamp.ErrGoodbyeAndOut)
	if _, err := client.Receive(ctx); err == nil {
		t.Fatal("receive after kill must fail")
	}
}
