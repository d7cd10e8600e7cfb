// Package redis provides a Redis Streams-backed history.Store. Each
// (realm, topic) pair maps to one stream capped with MaxLen, so retained
// history survives router restarts and can be shared with other
// consumers of the same Redis deployment.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wampkit/wampkit/history"
	"github.com/wampkit/wampkit/wamp"
)

// Store implements history.Store on Redis Streams.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	depth     int64
	ownClient bool
}

var _ history.Store = (*Store)(nil)

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client to use. If nil, a default client
	// against localhost:6379 is created and owned by the store.
	Client redis.UniversalClient
	// KeyPrefix is prepended to all Redis keys used by the store.
	// Defaults to "wampkit:history:" if empty.
	KeyPrefix string
	// Depth caps retained events per topic. Defaults to 16.
	Depth int64
}

// New creates a Redis-based history store.
func New(config Config) *Store {
	client := config.Client
	own := false
	if client == nil {
		client = redis.NewClient(&redis.Options{Addr: "localhost:6379"})
		own = true
	}
	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "wampkit:history:"
	}
	depth := config.Depth
	if depth <= 0 {
		depth = 16
	}
	return &Store{client: client, keyPrefix: keyPrefix, depth: depth, ownClient: own}
}

func (s *Store) streamKey(realm string, topic wamp.URI) string {
	return s.keyPrefix + realm + ":" + string(topic)
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, realm string, topic wamp.URI, ev history.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := s.streamKey(realm, topic)
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: s.depth,
		Approx: true,
		Values: map[string]any{"data": data},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append event to stream %s: %w", key, err)
	}
	return nil
}

// Last implements history.Store.
func (s *Store) Last(ctx context.Context, realm string, topic wamp.URI, n int) ([]history.Event, error) {
	if n <= 0 || int64(n) > s.depth {
		n = int(s.depth)
	}
	key := s.streamKey(realm, topic)
	msgs, err := s.client.XRevRangeN(ctx, key, "+", "-", int64(n)).Result()
	if err != nil {
		if err == redis.Nil {
			return []history.Event{}, nil
		}
		return nil, fmt.Errorf("failed to read stream %s: %w", key, err)
	}
	out := make([]history.Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			// Skip entries written by something else.
			continue
		}
		var ev history.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Close implements history.Store. The client is closed only when the
// store created it.
func (s *Store) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
