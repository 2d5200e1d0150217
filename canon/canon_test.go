package canon

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestCanonicalize_ObjectOrder(t *testing.T) {
	a, err := Canonicalize(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Canonicalize(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("key order changed the output: %q != %q", a, b)
	}
	if a != `{"a":1,"b":2}` {
		t.Errorf("Canonicalize() = %q, want %q", a, `{"a":1,"b":2}`)
	}
}

func TestCanonicalize_ArrayOrder(t *testing.T) {
	a, _ := Canonicalize([]any{1, 2})
	b, _ := Canonicalize([]any{2, 1})
	if a == b {
		t.Errorf("array order must matter, got %q for both", a)
	}
}

func TestCanonicalize(t *testing.T) {
	type inner struct {
		Z string `json:"z"`
		A []int  `json:"a"`
	}
	type outer struct {
		Name  string  `json:"name"`
		Inner inner   `json:"inner"`
		Skip  string  `json:"skip,omitempty"`
		Ratio float64 `json:"ratio"`
	}

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"null", nil, "null"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"integer", 42, "42"},
		{"negative zero", math.Copysign(0, -1), "0"},
		{"fraction", 0.5, "0.5"},
		{"small", 0.000001, "0.000001"},
		{"smaller", 1e-7, "1e-7"},
		{"large", 1e21, "1e+21"},
		{"below exponent", 1e20, "100000000000000000000"},
		{"json number", json.Number("1.50"), "1.5"},
		{"string escaping", "a\"b\\c\n\u0001<>&", `"a\"b\\c\n\u0001<>&"`},
		{"unicode kept", "Φ", `"Φ"`},
		{"nested", map[string]any{"b": []any{map[string]any{"y": 1, "x": 2}}, "a": nil}, `{"a":null,"b":[{"x":2,"y":1}]}`},
		{"struct", outer{Name: "n", Inner: inner{Z: "z", A: []int{3, 1}}, Ratio: 2}, `{"inner":{"a":[3,1],"z":"z"},"name":"n","ratio":2}`},
		{"raw message", json.RawMessage(`{"b":1, "a":[true]}`), `{"a":[true],"b":1}`},
		{"utf16 key order", map[string]any{"ﬁ": 2, "\U0001F600": 1}, "{\"\U0001F600\":1,\"ﬁ\":2}"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonicalize(tc.value)
			if err != nil {
				t.Fatalf("Canonicalize(%v) unexpected error: %v", tc.value, err)
			}
			if got != tc.want {
				t.Errorf("Canonicalize(%v) = %q, want %q", tc.value, got, tc.want)
			}
		})
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	t.Run("NaN", func(t *testing.T) {
		_, err := Canonicalize(math.NaN())
		var nf *NonFiniteNumberError
		if !errors.As(err, &nf) {
			t.Errorf("want NonFiniteNumberError, got %v", err)
		}
	})
	t.Run("Inf in struct", func(t *testing.T) {
		_, err := Canonicalize(struct{ X float64 }{math.Inf(1)})
		var nf *NonFiniteNumberError
		if !errors.As(err, &nf) {
			t.Errorf("want NonFiniteNumberError, got %v", err)
		}
	})
	t.Run("function", func(t *testing.T) {
		_, err := Canonicalize(func() {})
		var ut *UnsupportedTypeError
		if !errors.As(err, &ut) {
			t.Errorf("want UnsupportedTypeError, got %v", err)
		}
	})
	t.Run("channel in map", func(t *testing.T) {
		_, err := Canonicalize(map[string]any{"c": make(chan int)})
		var ut *UnsupportedTypeError
		if !errors.As(err, &ut) {
			t.Errorf("want UnsupportedTypeError, got %v", err)
		}
	})
}

func TestHash(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tc := range tests {
		if got := Hash(tc.in); got != tc.want {
			t.Errorf("Hash(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestHashValue_Deterministic(t *testing.T) {
	h1, err := HashValue(map[string]any{"v": "X", "n": 1, "list": []any{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashValue(map[string]any{"list": []any{"a", "b"}, "n": 1, "v": "X"})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("HashValue is not order independent: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("HashValue length = %d, want 64", len(h1))
	}
}
