// Package canon implements the deterministic JSON serialization used to
// content-address protocol messages, and the SHA-256 digest computed over it.
//
// The serialization follows the JSON Canonicalization Scheme conventions:
//   - object members are sorted by key, comparing UTF-16 code units,
//   - arrays keep their order,
//   - no insignificant whitespace is emitted,
//   - numbers are printed the ECMAScript way (shortest round-trip form),
//   - strings use plain JSON escaping, without HTML escaping.
//
// Any Go value accepted by encoding/json can be canonicalized: typed values
// are first encoded with their JSON tags and then re-read generically.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// NonFiniteNumberError is returned when a NaN or an infinite number is found.
type NonFiniteNumberError struct {
	Value float64
}

func (e *NonFiniteNumberError) Error() string {
	return fmt.Sprintf("canon: non-finite number %v not allowed", e.Value)
}

// UnsupportedTypeError is returned for values that have no JSON form
// (functions, channels, complex numbers...).
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("canon: unsupported type %s", e.Type)
}

// Canonicalize returns the canonical JSON text of v.
func Canonicalize(v any) (string, error) {
	var b strings.Builder
	if err := encode(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Hash returns the lowercase hex SHA-256 of the UTF-8 bytes of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashValue returns Hash(Canonicalize(v)).
func HashValue(v any) (string, error) {
	s, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return Hash(s), nil
}

func encode(b *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		writeString(b, x)
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			if math.IsInf(f, 0) {
				return &NonFiniteNumberError{Value: f}
			}
			return fmt.Errorf("canon: invalid number %q: %w", string(x), err)
		}
		return writeFloat(b, f)
	case float64:
		return writeFloat(b, x)
	case float32:
		return writeFloat(b, float64(x))
	case int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case json.RawMessage:
		if len(bytes.TrimSpace(x)) == 0 {
			b.WriteString("null")
			return nil
		}
		generic, err := decodeGeneric(x)
		if err != nil {
			return err
		}
		return encode(b, generic)
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encode(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUTF16)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(b, k)
			b.WriteByte(':')
			if err := encode(b, x[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return encodeReflect(b, v)
	}
	return nil
}

// encodeReflect handles every typed value by going through its JSON form.
func encodeReflect(b *strings.Builder, v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return &UnsupportedTypeError{Type: rv.Type().String()}
	}

	data, err := json.Marshal(v)
	if err != nil {
		var ute *json.UnsupportedTypeError
		if errors.As(err, &ute) {
			return &UnsupportedTypeError{Type: ute.Type.String()}
		}
		var uve *json.UnsupportedValueError
		if errors.As(err, &uve) && uve.Value.CanFloat() {
			return &NonFiniteNumberError{Value: uve.Value.Float()}
		}
		return fmt.Errorf("canon: cannot encode %T: %w", v, err)
	}
	generic, err := decodeGeneric(data)
	if err != nil {
		return err
	}
	return encode(b, generic)
}

func decodeGeneric(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canon: malformed json: %w", err)
	}
	return generic, nil
}

func writeFloat(b *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &NonFiniteNumberError{Value: f}
	}
	b.WriteString(formatNumber(f))
	return nil
}

// formatNumber prints f like ECMAScript's Number.prototype.toString.
func formatNumber(f float64) string {
	if f == 0 {
		return "0" // also -0
	}
	neg := f < 0
	if neg {
		f = -f
	}
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	digits := strings.Replace(mant, ".", "", 1)
	e, _ := strconv.Atoi(exp)
	n, k := e+1, len(digits)

	var out string
	switch {
	case k <= n && n <= 21:
		out = digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		out = digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		out = "0." + strings.Repeat("0", -n) + digits
	default:
		out = digits[:1]
		if k > 1 {
			out += "." + digits[1:]
		}
		if n-1 < 0 {
			out += "e-" + strconv.Itoa(1-n)
		} else {
			out += "e+" + strconv.Itoa(n-1)
		}
	}
	if neg {
		out = "-" + out
	}
	return out
}

const hexDigits = "0123456789abcdef"

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[r>>4])
				b.WriteByte(hexDigits[r&0xF])
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// compareUTF16 orders strings by their UTF-16 code units, which is how
// ECMAScript sorts object keys.
func compareUTF16(a, b string) int {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return len(ua) - len(ub)
}
