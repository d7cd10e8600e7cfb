// Package history defines the optional last-event cache attached to a
// realm's broker. When a store is configured the broker appends every
// routed publication to it; clients retrieve retained events through the
// wamp.topic.history.last meta procedure. Routing itself never depends
// on the store: append failures are logged and dropped.
package history

import (
	"context"
	"time"

	"github.com/wampkit/wampkit/wamp"
)

// Event is one retained publication.
type Event struct {
	Publication wamp.ID   `json:"publication"`
	Topic       wamp.URI  `json:"topic"`
	Args        []any     `json:"args,omitempty"`
	Kwargs      wamp.Dict `json:"kwargs,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store retains recent events per (realm, topic). Implementations bound
// retention themselves; Append never blocks routing for long.
type Store interface {
	// Append retains ev for the topic, evicting the oldest retained
	// event if the per-topic bound is reached.
	Append(ctx context.Context, realm string, topic wamp.URI, ev Event) error

	// Last returns up to n most recent events for the topic, newest
	// first. An unknown topic yields an empty slice, not an error.
	Last(ctx context.Context, realm string, topic wamp.URI, n int) ([]Event, error)

	// Close releases backend resources.
	Close() error
}
