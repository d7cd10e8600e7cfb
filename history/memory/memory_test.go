package memory

import (
	"context"
	"testing"

	"github.com/wampkit/wampkit/history"
	"github.com/wampkit/wampkit/wamp"
)

func TestAppendAndLast(t *testing.T) {
	s, err := New(WithDepth(3))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		ev := history.Event{Publication: wamp.ID(i), Topic: "com.example.t"}
		if err := s.Append(ctx, "realm1", "com.example.t", ev); err != nil {
			t.Fatal(err)
		}
	}

	// Depth 3: only the newest three survive, newest first.
	evs, err := s.Last(ctx, "realm1", "com.example.t", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 3 {
		t.Fatalf("len = %d, want 3", len(evs))
	}
	for i, want := range []int{5, 4, 3} {
		if evs[i].Publication != wamp.ID(want) {
			t.Fatalf("evs[%d].Publication = %d, want %d", i, evs[i].Publication, want)
		}
	}

	// Limit below retention.
	evs, err = s.Last(ctx, "realm1", "com.example.t", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].Publication != wamp.ID(5) {
		t.Fatalf("Last(1) = %v", evs)
	}
}

func TestLastUnknownTopic(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	evs, err := s.Last(context.Background(), "realm1", "com.example.none", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 0 {
		t.Fatalf("len = %d, want 0", len(evs))
	}
}

func TestRealmIsolation(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Append(ctx, "a", "t", history.Event{Publication: 1, Topic: "t"}); err != nil {
		t.Fatal(err)
	}
	evs, err := s.Last(ctx, "b", "t", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 0 {
		t.Fatalf("realm b sees realm a history: %v", evs)
	}
}
