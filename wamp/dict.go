package wamp

// Dict carries the options and details maps attached to most messages.
// Values arrive from transports already decoded, so accessors tolerate
// the numeric type variety that JSON decoding produces.
type Dict map[string]any

// String returns the string value at key, or "" if absent or not a string.
func (d Dict) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool returns the bool value at key, or def if absent or not a bool.
func (d Dict) Bool(key string, def bool) bool {
	if v, ok := d[key].(bool); ok {
		return v
	}
	return def
}

// Int64 returns the integer value at key, accepting the int/int64/uint64/
// float64 representations decoders produce. Returns 0 if absent.
func (d Dict) Int64(key string) int64 {
	switch v := d[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case ID:
		return int64(v)
	}
	return 0
}

// IDList returns the list of ids at key, tolerating mixed numeric element
// types. Returns nil if absent or not a list.
func (d Dict) IDList(key string) []ID {
	raw, ok := d[key].([]any)
	if !ok {
		if ids, ok := d[key].([]ID); ok {
			return ids
		}
		return nil
	}
	out := make([]ID, 0, len(raw))
	for _, e := range raw {
		switch v := e.(type) {
		case int:
			out = append(out, ID(v))
		case int64:
			out = append(out, ID(v))
		case uint64:
			out = append(out, ID(v))
		case float64:
			out = append(out, ID(v))
		case ID:
			out = append(out, v)
		}
	}
	return out
}

// StringList returns the list of strings at key. Returns nil if absent.
func (d Dict) StringList(key string) []string {
	if ss, ok := d[key].([]string); ok {
		return ss
	}
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Dict returns the nested dict at key, or nil.
func (d Dict) Dict(key string) Dict {
	switch v := d[key].(type) {
	case Dict:
		return v
	case map[string]any:
		return Dict(v)
	}
	return nil
}
