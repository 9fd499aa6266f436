package worlddb

import "testing"

func TestStringify(t *testing.T) {
	tests := []struct {
		val  any
		want string
	}{
		{nil, "None"},
		{true, "True"},
		{false, "False"},
		{int64(42), "42"},
		{float64(2.5), "2.5"},
		{"plain", "plain"},
		{[]any{int64(1), "two", nil}, "[1, two, None]"},
		{map[string]any{"b": int64(2), "a": int64(1)}, `{"a": 1, "b": 2}`},
		{&Text{Text: "x"}, "<text>"},
		{&Code{Text: "x"}, "<code>"},
	}
	for _, tc := range tests {
		if got := Stringify(tc.val); got != tc.want {
			t.Errorf("Stringify(%v) = %q, want %q", tc.val, got, tc.want)
		}
	}
}

func TestTruthy(t *testing.T) {
	truthy := []any{true, int64(1), float64(0.1), "x", []any{nil}, map[string]any{"k": nil}, &Text{}}
	falsy := []any{nil, false, int64(0), float64(0), "", []any{}, map[string]any{}}
	for _, val := range truthy {
		if !Truthy(val) {
			t.Errorf("Truthy(%#v) = false", val)
		}
	}
	for _, val := range falsy {
		if Truthy(val) {
			t.Errorf("Truthy(%#v) = true", val)
		}
	}
}

func TestDeepCopy(t *testing.T) {
	orig := map[string]any{"list": []any{int64(1), int64(2)}}
	cp := DeepCopy(orig).(map[string]any)
	cp["list"].([]any)[0] = int64(99)
	if orig["list"].([]any)[0] != int64(1) {
		t.Errorf("copy aliased the original: %v", orig)
	}
}

func TestCheckStorable(t *testing.T) {
	good := []any{nil, "x", int64(1), float64(1), true,
		[]any{map[string]any{"k": "v"}}, &Event{Text: "boom"}}
	for _, val := range good {
		if err := CheckStorable(val); err != nil {
			t.Errorf("CheckStorable(%#v): %v", val, err)
		}
	}
	if err := CheckStorable(struct{}{}); err == nil {
		t.Errorf("arbitrary struct accepted")
	}
	if err := CheckStorable(map[string]any{"": "v"}); err == nil {
		t.Errorf("empty map key accepted")
	}

	// Self-referential containers are caught by the depth bound.
	loop := []any{nil}
	loop[0] = loop
	if err := CheckStorable(loop); err == nil {
		t.Errorf("self-referential list accepted")
	}
}
