// Package memory provides an in-memory history.Store. Topics are held
// in an LRU cache so an unbounded topic space cannot grow resident
// memory without limit; each topic keeps a fixed-depth ring of events.
package memory

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wampkit/wampkit/history"
	"github.com/wampkit/wampkit/wamp"
)

const (
	defaultTopicLimit = 1024
	defaultDepth      = 16
)

// Store implements history.Store in memory.
type Store struct {
	mu     sync.Mutex
	topics *lru.Cache[string, *ring]
	depth  int
}

var _ history.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*config)

type config struct {
	topicLimit int
	depth      int
}

// WithTopicLimit bounds how many distinct topics retain history; least
// recently used topics are evicted beyond it.
func WithTopicLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.topicLimit = n
		}
	}
}

// WithDepth sets how many events are retained per topic.
func WithDepth(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.depth = n
		}
	}
}

// New creates an in-memory history store.
func New(opts ...Option) (*Store, error) {
	cfg := config{topicLimit: defaultTopicLimit, depth: defaultDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	topics, err := lru.New[string, *ring](cfg.topicLimit)
	if err != nil {
		return nil, err
	}
	return &Store{topics: topics, depth: cfg.depth}, nil
}

func key(realm string, topic wamp.URI) string {
	return realm + "|" + string(topic)
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, realm string, topic wamp.URI, ev history.Event) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(realm, topic)
	r, ok := s.topics.Get(k)
	if !ok {
		r = newRing(s.depth)
		s.topics.Add(k, r)
	}
	r.push(ev)
	return nil
}

// Last implements history.Store.
func (s *Store) Last(ctx context.Context, realm string, topic wamp.URI, n int) ([]history.Event, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.topics.Get(key(realm, topic))
	if !ok {
		return []history.Event{}, nil
	}
	return r.last(n), nil
}

// Close implements history.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics.Purge()
	return nil
}

// ring is a fixed-capacity event buffer overwriting the oldest entry.
type ring struct {
	buf   []history.Event
	next  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]history.Event, capacity)}
}

func (r *ring) push(ev history.Event) {
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// last returns up to n events, newest first.
func (r *ring) last(n int) []history.Event {
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]history.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.buf)*2) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
