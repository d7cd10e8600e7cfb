package router

import (
	"log/slog"

	"github.com/wampkit/wampkit/wamp"
)

// subscription is one (topic pattern, match policy) binding with its
// member sessions. It lives in exactly one realm and is deleted when the
// member set empties.
type subscription struct {
	id      wamp.ID
	topic   wamp.URI
	policy  string
	members map[wamp.ID]*session
}

// broker is the per-realm pub/sub engine. Every method runs on the
// realm's op goroutine; no internal locking is needed or wanted.
type broker struct {
	log   *slog.Logger
	idgen *wamp.ScopeGen

	subscriptions map[wamp.ID]*subscription
	exact         map[wamp.URI]*subscription
	prefix        map[wamp.URI]*subscription
	wildcard      map[wamp.URI]*subscription

	// bySession indexes the subscriptions each session belongs to, for
	// O(owned) teardown.
	bySession map[wamp.ID]map[wamp.ID]*subscription
}

func newBroker(log *slog.Logger) *broker {
	return &broker{
		log:           log,
		idgen:         wamp.NewScopeGen(),
		subscriptions: make(map[wamp.ID]*subscription),
		exact:         make(map[wamp.URI]*subscription),
		prefix:        make(map[wamp.URI]*subscription),
		wildcard:      make(map[wamp.URI]*subscription),
		bySession:     make(map[wamp.ID]map[wamp.ID]*subscription),
	}
}

func (b *broker) index(policy string) map[wamp.URI]*subscription {
	switch policy {
	case wamp.MatchPrefix:
		return b.prefix
	case wamp.MatchWildcard:
		return b.wildcard
	}
	return b.exact
}

// subscribe adds the session to the subscription for (topic, policy),
// creating it on first use. Re-subscribing to the same pattern is
// idempotent and returns the existing id without duplicating membership.
func (b *broker) subscribe(s *session, topic wamp.URI, policy string) *subscription {
	idx := b.index(policy)
	sub, ok := idx[topic]
	if !ok {
		sub = &subscription{
			id:      b.idgen.Next(),
			topic:   topic,
			policy:  policy,
			members: make(map[wamp.ID]*session),
		}
		idx[topic] = sub
		b.subscriptions[sub.id] = sub
	}
	if _, member := sub.members[s.id]; member {
		return sub
	}
	sub.members[s.id] = s
	owned := b.bySession[s.id]
	if owned == nil {
		owned = make(map[wamp.ID]*subscription)
		b.bySession[s.id] = owned
	}
	owned[sub.id] = sub
	return sub
}

// unsubscribe removes the session from the subscription. Returns a
// non-empty error URI if the session is not a member.
func (b *broker) unsubscribe(s *session, subID wamp.ID) wamp.URI {
	sub, ok := b.subscriptions[subID]
	if !ok {
		return wamp.ErrNoSuchSubscription
	}
	if _, member := sub.members[s.id]; !member {
		return wamp.ErrNoSuchSubscription
	}
	b.drop(s, sub)
	return ""
}

func (b *broker) drop(s *session, sub *subscription) {
	delete(sub.members, s.id)
	if owned := b.bySession[s.id]; owned != nil {
		delete(owned, sub.id)
		if len(owned) == 0 {
			delete(b.bySession, s.id)
		}
	}
	if len(sub.members) == 0 {
		delete(b.subscriptions, sub.id)
		delete(b.index(sub.policy), sub.topic)
	}
}

// removeSession drops the session from every subscription it belongs
// to, deleting subscriptions that empty out.
func (b *broker) removeSession(s *session) {
	for _, sub := range b.bySession[s.id] {
		delete(sub.members, s.id)
		if len(sub.members) == 0 {
			delete(b.subscriptions, sub.id)
			delete(b.index(sub.policy), sub.topic)
		}
	}
	delete(b.bySession, s.id)
}

// matching returns the subscriptions whose pattern matches topic.
func (b *broker) matching(topic wamp.URI) []*subscription {
	var out []*subscription
	if sub, ok := b.exact[topic]; ok {
		out = append(out, sub)
	}
	for pattern, sub := range b.prefix {
		if wamp.PrefixMatch(pattern, topic) {
			out = append(out, sub)
		}
	}
	for pattern, sub := range b.wildcard {
		if wamp.WildcardMatch(pattern, topic) {
			out = append(out, sub)
		}
	}
	return out
}

// publish fans the publication out to every member of every matching
// subscription that survives the exclusion and eligibility filters.
// Delivery is fire-and-forget per recipient: a recipient that cannot
// keep up is killed by its own queue policy and the publisher never
// hears about it. Returns the publication id and recipient count.
func (b *broker) publish(publisher *session, msg *wamp.Publish, discloseAllowed bool) (wamp.ID, int) {
	pubID := wamp.GlobalID()

	disclose := false
	if msg.Options.Bool("disclose_me", false) && discloseAllowed {
		disclose = true
	}

	delivered := 0
	for _, sub := range b.matching(msg.Topic) {
		details := wamp.Dict{}
		if sub.policy != wamp.MatchExact {
			details["topic"] = msg.Topic
		}
		if disclose && publisher != nil {
			details["publisher"] = publisher.id
			details["publisher_authid"] = publisher.identity.AuthID
			details["publisher_authrole"] = publisher.identity.AuthRole
		}
		for _, member := range sub.members {
			if !recipientEligible(publisher, member, msg.Options) {
				continue
			}
			member.trySend(&wamp.Event{
				Subscription: sub.id,
				Publication:  pubID,
				Details:      details,
				Args:         msg.Args,
				Kwargs:       msg.Kwargs,
			})
			delivered++
		}
	}
	return pubID, delivered
}

// recipientEligible applies the publisher's exclusion and eligibility
// options to one candidate recipient.
func recipientEligible(publisher, recipient *session, opts wamp.Dict) bool {
	if publisher != nil && recipient.id == publisher.id && opts.Bool("exclude_me", true) {
		return false
	}
	for _, id := range opts.IDList("exclude") {
		if recipient.id == id {
			return false
		}
	}
	for _, authid := range opts.StringList("exclude_authid") {
		if recipient.identity.AuthID == authid {
			return false
		}
	}
	for _, role := range opts.StringList("exclude_authrole") {
		if recipient.identity.AuthRole == role {
			return false
		}
	}
	if _, ok := opts["eligible"]; ok {
		if !containsID(opts.IDList("eligible"), recipient.id) {
			return false
		}
	}
	if _, ok := opts["eligible_authid"]; ok {
		if !containsString(opts.StringList("eligible_authid"), recipient.identity.AuthID) {
			return false
		}
	}
	if _, ok := opts["eligible_authrole"]; ok {
		if !containsString(opts.StringList("eligible_authrole"), recipient.identity.AuthRole) {
			return false
		}
	}
	return true
}

func containsID(ids []wamp.ID, id wamp.ID) bool {
	for _, e := range ids {
		if e == id {
			return true
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, e := range ss {
		if e == s {
			return true
		}
	}
	return false
}

// sessionSubscriptions lists the ids of subscriptions the session is a
// member of.
func (b *broker) sessionSubscriptions(s *session) []wamp.ID {
	out := make([]wamp.ID, 0, len(b.bySession[s.id]))
	for id := range b.bySession[s.id] {
		out = append(out, id)
	}
	return out
}

// listIDs returns all subscription ids grouped by match policy, for the
// subscription meta procedure.
func (b *broker) listIDs() wamp.Dict {
	group := func(idx map[wamp.URI]*subscription) []wamp.ID {
		ids := make([]wamp.ID, 0, len(idx))
		for _, sub := range idx {
			ids = append(ids, sub.id)
		}
		return ids
	}
	return wamp.Dict{
		"exact":    group(b.exact),
		"prefix":   group(b.prefix),
		"wildcard": group(b.wildcard),
	}
}
