package phiterm

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Fixed-point scales. Φ amounts are held in micro-Φ, USD amounts in cents.
const (
	PhiDecimals = 6
	USDDecimals = 2
)

var (
	nonNumeric     = regexp.MustCompile(`[^\d.]`)
	decimalPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// Micro is an exact amount of micro-Φ (Φ × 10⁶).
//
// Its zero value is a valid 0. It is immutable: operations return new values.
type Micro struct {
	v *big.Int
}

// NewMicro returns an amount of m micro-Φ.
func NewMicro(m int64) Micro { return Micro{v: big.NewInt(m)} }

// ParseMicro parses an integer count of micro-Φ, as persisted in totals.
func ParseMicro(s string) (Micro, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Micro{}, fmt.Errorf("invalid micro-phi integer %q", s)
	}
	return Micro{v: v}, nil
}

func (m Micro) int() *big.Int {
	if m.v == nil {
		return new(big.Int)
	}
	return m.v
}

func (m Micro) Add(n Micro) Micro  { return Micro{v: new(big.Int).Add(m.int(), n.int())} }
func (m Micro) Sub(n Micro) Micro  { return Micro{v: new(big.Int).Sub(m.int(), n.int())} }
func (m Micro) Cmp(n Micro) int    { return m.int().Cmp(n.int()) }
func (m Micro) Equal(n Micro) bool { return m.Cmp(n) == 0 }
func (m Micro) IsZero() bool       { return m.int().Sign() == 0 }
func (m Micro) IsPositive() bool   { return m.int().Sign() > 0 }
func (m Micro) BigInt() *big.Int   { return new(big.Int).Set(m.int()) }
func (m Micro) String() string     { return m.int().String() }
func (m Micro) Phi() string        { return MicroToPhi(m) }

func (m Micro) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON accepts both a quoted integer and a bare JSON number.
func (m *Micro) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseMicro(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Cents is an exact amount of US cents.
type Cents struct {
	v *big.Int
}

// NewCents returns an amount of c cents.
func NewCents(c int64) Cents { return Cents{v: big.NewInt(c)} }

func (c Cents) int() *big.Int {
	if c.v == nil {
		return new(big.Int)
	}
	return c.v
}

func (c Cents) Cmp(d Cents) int    { return c.int().Cmp(d.int()) }
func (c Cents) Equal(d Cents) bool { return c.Cmp(d) == 0 }
func (c Cents) BigInt() *big.Int   { return new(big.Int).Set(c.int()) }
func (c Cents) String() string     { return CentsToUSD(c) }

// NormalizeNumericInput sanitizes free text typed in an amount field: every
// character other than digits and dots is dropped, leading zeros are removed
// and the fractional part is truncated to decimals digits.
//
// It is meant for live input; stored amounts never go through it.
func NormalizeNumericInput(raw string, decimals int) string {
	parts := strings.Split(nonNumeric.ReplaceAllString(raw, ""), ".")
	intPart := strings.TrimLeft(parts[0], "0")
	if intPart == "" {
		intPart = "0"
	}
	if len(parts) == 1 {
		return intPart
	}
	frac := parts[1]
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	return intPart + "." + frac
}

func NormalizePhiInput(raw string) string { return NormalizeNumericInput(raw, PhiDecimals) }
func NormalizeUSDInput(raw string) string { return NormalizeNumericInput(raw, USDDecimals) }

// parseScaled reads a plain decimal string into an integer of 10^-decimals
// units. Extra fraction digits are truncated.
func parseScaled(s string, decimals int) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return nil, false
	}
	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))
	return new(big.Int).SetString(intPart+frac, 10)
}

// ParsePhi strictly parses a decimal Φ string (e.g. "9.5") into micro-Φ.
func ParsePhi(s string) (Micro, error) {
	v, ok := parseScaled(s, PhiDecimals)
	if !ok {
		return Micro{}, fmt.Errorf("invalid phi amount %q", s)
	}
	return Micro{v: v}, nil
}

// PhiToMicro converts a decimal Φ string to micro-Φ. Malformed input is 0.
func PhiToMicro(s string) Micro {
	m, err := ParsePhi(s)
	if err != nil {
		return Micro{}
	}
	return m
}

// MicroFromPhiInput converts free-text input to micro-Φ.
func MicroFromPhiInput(raw string) Micro {
	return PhiToMicro(strings.TrimSuffix(NormalizePhiInput(raw), "."))
}

// MicroToPhi renders micro-Φ as a decimal Φ string with no trailing zeros.
func MicroToPhi(m Micro) string {
	return decimal.NewFromBigInt(m.int(), -PhiDecimals).String()
}

// USDToCents converts a decimal USD string to cents. Malformed input is 0.
func USDToCents(s string) Cents {
	v, ok := parseScaled(s, USDDecimals)
	if !ok {
		return Cents{}
	}
	return Cents{v: v}
}

// CentsFromUSDInput converts free-text input to cents.
func CentsFromUSDInput(raw string) Cents {
	return USDToCents(strings.TrimSuffix(NormalizeUSDInput(raw), "."))
}

// CentsToUSD renders cents as a decimal USD string, always with 2 decimals.
func CentsToUSD(c Cents) string {
	return decimal.NewFromBigInt(c.int(), -USDDecimals).StringFixed(USDDecimals)
}

// FormatUSD renders cents for display, e.g. "$1,234.56".
func FormatUSD(c Cents) string {
	if !c.int().IsInt64() {
		return "$" + CentsToUSD(c)
	}
	return money.New(c.int().Int64(), money.USD).Display()
}
