package wamp

import "testing"

func TestDictAccessors(t *testing.T) {
	d := Dict{
		"s":    "str",
		"b":    true,
		"f":    float64(42), // JSON decoders produce float64
		"i":    7,
		"ids":  []any{float64(3), 4, ID(5)},
		"strs": []any{"a", "b"},
		"sub":  map[string]any{"k": "v"},
	}

	if got := d.String("s"); got != "str" {
		t.Errorf("String = %q", got)
	}
	if got := d.String("missing"); got != "" {
		t.Errorf("String(missing) = %q", got)
	}
	if !d.Bool("b", false) {
		t.Error("Bool = false")
	}
	if !d.Bool("missing", true) {
		t.Error("Bool default not honored")
	}
	if got := d.Int64("f"); got != 42 {
		t.Errorf("Int64(f) = %d", got)
	}
	if got := d.Int64("i"); got != 7 {
		t.Errorf("Int64(i) = %d", got)
	}
	ids := d.IDList("ids")
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 4 || ids[2] != 5 {
		t.Errorf("IDList = %v", ids)
	}
	strs := d.StringList("strs")
	if len(strs) != 2 || strs[0] != "a" {
		t.Errorf("StringList = %v", strs)
	}
	if got := d.Dict("sub").String("k"); got != "v" {
		t.Errorf("Dict(sub).String(k) = %q", got)
	}
	if d.Dict("missing") != nil {
		t.Error("Dict(missing) != nil")
	}
}
