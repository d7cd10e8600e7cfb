package wamp

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// ID identifies sessions, requests, subscriptions, registrations,
// publications, and invocations. Valid ids fall in [1, 2^53] so they
// survive transit through JSON implementations that only have doubles.
type ID uint64

// MaxID is the largest valid ID.
const MaxID ID = 1 << 53

// GlobalID returns a uniformly random id drawn from the full id space.
// Used for session and publication ids, where ids must be high-entropy
// and hard to guess. Never returns zero.
func GlobalID() ID {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			// crypto/rand failure is unrecoverable on every supported
			// platform; there is no sane id to hand out without it.
			panic("wamp: crypto/rand unavailable: " + err.Error())
		}
		id := ID(binary.BigEndian.Uint64(b[:]) % uint64(MaxID))
		if id != 0 {
			return id
		}
	}
}

// ScopeGen hands out sequential ids within a single scope (one realm's
// router-scope ids, or one session's request ids). Safe for concurrent
// use. Wraps back to 1 after MaxID; callers that require uniqueness over
// the scope lifetime must check for collisions against live ids, which
// in practice never happens before the owning scope is recycled.
type ScopeGen struct {
	mu   sync.Mutex
	next ID
}

// NewScopeGen returns a generator whose first id is 1.
func NewScopeGen() *ScopeGen {
	return &ScopeGen{next: 1}
}

// Next returns the next id in the scope.
func (g *ScopeGen) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next
	if g.next >= MaxID {
		g.next = 1
	} else {
		g.next++
	}
	return id
}
