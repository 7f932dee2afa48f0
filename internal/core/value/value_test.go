package value

import (
	"math"
	"testing"
)

func TestMapOfDropsNonPrimitiveAndNonFinite(t *testing.T) {
	in := map[string]any{
		"speed":  1.5,
		"count":  3,
		"name":   "crate",
		"on":     true,
		"none":   nil,
		"nan":    math.NaN(),
		"inf":    math.Inf(-1),
		"nested": map[string]any{"x": 1},
		"list":   []int{1, 2},
	}
	m, dropped := MapOf(in)
	if len(m) != 5 {
		t.Fatalf("kept %d keys, want 5: %v", len(m), m.Keys())
	}
	want := []string{"inf", "list", "nan", "nested"}
	if len(dropped) != len(want) {
		t.Fatalf("dropped %v, want %v", dropped, want)
	}
	for i := range want {
		if dropped[i] != want[i] {
			t.Fatalf("dropped %v, want %v", dropped, want)
		}
	}
	if got := m.Number("count", 0); got != 3 {
		t.Fatalf("count = %v, want 3", got)
	}
	if got := m.Number("name", -1); got != -1 {
		t.Fatalf("string read as number should fall back, got %v", got)
	}
	if !m["none"].IsNil() {
		t.Fatalf("nil entry not preserved")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := Map{"a": MustNumber(1)}
	c := m.Clone()
	c["a"] = StringOf("changed")
	if m.Number("a", 0) != 1 {
		t.Fatalf("clone aliases the original map")
	}
	var empty Map
	if got := empty.Clone(); got == nil || len(got) != 0 {
		t.Fatalf("nil clone = %v, want empty map", got)
	}
}
