package wamp

import "testing"

func TestValidURI(t *testing.T) {
	valid := []URI{"com.example.topic", "a", "a.b", "com.example.under_score1"}
	for _, u := range valid {
		if !ValidURI(u) {
			t.Errorf("ValidURI(%q) = false, want true", u)
		}
	}
	invalid := []URI{"", ".", "com..example", ".start", "end.", "has space", "has#hash"}
	for _, u := range invalid {
		if ValidURI(u) {
			t.Errorf("ValidURI(%q) = true, want false", u)
		}
	}
}

func TestValidPattern(t *testing.T) {
	if !ValidPattern("com.example.", MatchPrefix) {
		t.Error("trailing-dot prefix pattern rejected")
	}
	if !ValidPattern("com.example", MatchPrefix) {
		t.Error("plain prefix pattern rejected")
	}
	if !ValidPattern("com..topic", MatchWildcard) {
		t.Error("wildcard pattern with empty component rejected")
	}
	if ValidPattern("..", MatchWildcard) {
		t.Error("all-empty wildcard pattern accepted")
	}
	if ValidPattern("com..topic", MatchExact) {
		t.Error("empty component accepted for exact policy")
	}
	if ValidPattern("com.example", "bogus") {
		t.Error("unknown policy accepted")
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		pattern URI
		topic   URI
		policy  string
		want    bool
	}{
		{"com.foo.bar", "com.foo.bar", MatchExact, true},
		{"com.foo.bar", "com.foo.baz", MatchExact, false},
		{"com.foo.bar", "com.foo.bar", "", true},
		{"com.foo.", "com.foo.bar", MatchPrefix, true},
		{"com.foo.", "com.foo.bar.baz", MatchPrefix, true},
		{"com.foo.", "com.fox.bar", MatchPrefix, false},
		{"com.foo", "com.foobar", MatchPrefix, true},
		{"com..bar", "com.foo.bar", MatchWildcard, true},
		{"com..bar", "com.foo.baz", MatchWildcard, false},
		{"com..bar", "com.foo.extra.bar", MatchWildcard, false},
		{"..", "a.b.c", MatchWildcard, true},
	}
	for _, c := range cases {
		if got := Matches(c.pattern, c.topic, c.policy); got != c.want {
			t.Errorf("Matches(%q, %q, %q) = %v, want %v", c.pattern, c.topic, c.policy, got, c.want)
		}
	}
}
