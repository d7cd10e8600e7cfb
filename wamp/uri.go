package wamp

import "strings"

// URI names a topic, procedure, error, or realm. Components are separated
// by dots; pattern URIs used with wildcard matching may contain empty
// components that match any single component.
type URI string

// Match policies accepted by subscribe and register.
const (
	MatchExact    = "exact"
	MatchPrefix   = "prefix"
	MatchWildcard = "wildcard"
)

// Invocation policies accepted by register for shared registrations.
const (
	InvokeSingle     = "single"
	InvokeFirst      = "first"
	InvokeLast       = "last"
	InvokeRandom     = "random"
	InvokeRoundRobin = "roundrobin"
)

// ValidMatchPolicy reports whether p is a recognized match policy. The
// empty string is accepted and means exact.
func ValidMatchPolicy(p string) bool {
	switch p {
	case "", MatchExact, MatchPrefix, MatchWildcard:
		return true
	}
	return false
}

// ValidInvokePolicy reports whether p is a recognized invocation policy.
// The empty string is accepted and means single.
func ValidInvokePolicy(p string) bool {
	switch p {
	case "", InvokeSingle, InvokeFirst, InvokeLast, InvokeRandom, InvokeRoundRobin:
		return true
	}
	return false
}

// ValidURI reports whether u is acceptable as an exact topic, procedure,
// or realm name: non-empty, no whitespace or hash, and no empty
// components. Empty components are reserved for wildcard patterns; use
// ValidPattern for those.
func ValidURI(u URI) bool {
	if u == "" {
		return false
	}
	if strings.ContainsAny(string(u), " \t\n\r#") {
		return false
	}
	for _, c := range strings.Split(string(u), ".") {
		if c == "" {
			return false
		}
	}
	return true
}

// ValidPattern reports whether u is acceptable under the given match
// policy. Prefix patterns follow exact-URI rules except that a trailing
// dot is allowed; wildcard patterns may contain empty components but not
// consist solely of them.
func ValidPattern(u URI, policy string) bool {
	switch policy {
	case "", MatchExact:
		return ValidURI(u)
	case MatchPrefix:
		if u == "" || strings.ContainsAny(string(u), " \t\n\r#") {
			return false
		}
		trimmed := strings.TrimSuffix(string(u), ".")
		return trimmed != "" && ValidURI(URI(trimmed))
	case MatchWildcard:
		if u == "" || strings.ContainsAny(string(u), " \t\n\r#") {
			return false
		}
		nonEmpty := false
		for _, c := range strings.Split(string(u), ".") {
			if c != "" {
				nonEmpty = true
			}
		}
		return nonEmpty
	}
	return false
}

// PrefixMatch reports whether topic falls under the prefix pattern.
func PrefixMatch(pattern, topic URI) bool {
	return strings.HasPrefix(string(topic), string(pattern))
}

// WildcardMatch reports whether topic matches the wildcard pattern:
// same component count, with empty pattern components matching any
// single topic component.
func WildcardMatch(pattern, topic URI) bool {
	pc := strings.Split(string(pattern), ".")
	tc := strings.Split(string(topic), ".")
	if len(pc) != len(tc) {
		return false
	}
	for i, p := range pc {
		if p != "" && p != tc[i] {
			return false
		}
	}
	return true
}

// Matches reports whether topic matches pattern under the given policy.
func Matches(pattern, topic URI, policy string) bool {
	switch policy {
	case "", MatchExact:
		return pattern == topic
	case MatchPrefix:
		return PrefixMatch(pattern, topic)
	case MatchWildcard:
		return WildcardMatch(pattern, topic)
	}
	return false
}
