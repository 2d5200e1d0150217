package phiterm

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/big"
	"net/http"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

var (
	usdCentsScale = big.NewInt(100)
	microPhiScale = big.NewInt(1_000_000)
	usdRateScale  = big.NewInt(1_000_000)
	usdRateDenom  = big.NewInt(1_000_000_000_000) // microPhiScale × usdRateScale
)

// Rate is a USD per Φ quote in fixed point, scaled by 10⁶.
//
// The zero value is an unavailable rate.
type Rate struct {
	scaled *big.Int
}

// NewRate returns the fixed-point rate for usdPerPhi. A NaN, infinite, or
// non-positive quote (or one that rounds to 0) is unavailable.
func NewRate(usdPerPhi float64) (Rate, bool) {
	if math.IsNaN(usdPerPhi) || math.IsInf(usdPerPhi, 0) || usdPerPhi <= 0 {
		return Rate{}, false
	}
	return rateFromDecimal(decimal.NewFromFloat(usdPerPhi))
}

// ParseRate parses a decimal USD per Φ quote such as "0.25".
func ParseRate(s string) (Rate, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, false
	}
	return rateFromDecimal(d)
}

func rateFromDecimal(d decimal.Decimal) (Rate, bool) {
	scaled := d.Shift(6).Round(0).BigInt()
	if scaled.Sign() <= 0 {
		return Rate{}, false
	}
	return Rate{scaled: scaled}, true
}

// Valid reports whether the rate can be used for conversions.
func (r Rate) Valid() bool { return r.scaled != nil && r.scaled.Sign() > 0 }

// String returns the decimal USD per Φ value, or "" when unavailable.
func (r Rate) String() string {
	if !r.Valid() {
		return ""
	}
	return decimal.NewFromBigInt(r.scaled, -6).String()
}

// roundDiv returns (num + den/2) / den.
func roundDiv(num, den *big.Int) *big.Int {
	half := new(big.Int).Quo(den, big.NewInt(2))
	return new(big.Int).Quo(new(big.Int).Add(num, half), den)
}

// USDCentsFromMicro quotes m in cents. ok is false when the rate is unavailable.
func USDCentsFromMicro(m Micro, r Rate) (c Cents, ok bool) {
	if !r.Valid() {
		return Cents{}, false
	}
	num := new(big.Int).Mul(m.int(), r.scaled)
	num.Mul(num, usdCentsScale)
	return Cents{v: roundDiv(num, usdRateDenom)}, true
}

// MicroFromUSDCents converts cents to micro-Φ. ok is false when the rate is unavailable.
func MicroFromUSDCents(c Cents, r Rate) (m Micro, ok bool) {
	if !r.Valid() {
		return Micro{}, false
	}
	num := new(big.Int).Mul(c.int(), microPhiScale)
	num.Mul(num, usdRateScale)
	den := new(big.Int).Mul(usdCentsScale, r.scaled)
	return Micro{v: roundDiv(num, den)}, true
}

// FormatUSDFromMicro renders the USD display value of m, if a rate is available.
func FormatUSDFromMicro(m Micro, r Rate) (string, bool) {
	c, ok := USDCentsFromMicro(m, r)
	if !ok {
		return "", false
	}
	return FormatUSD(c), true
}

// QuoteStatus tells where a quote comes from.
type QuoteStatus string

const (
	QuoteLive        QuoteStatus = "live"
	QuoteCached      QuoteStatus = "cached"
	QuoteUnavailable QuoteStatus = "unavailable"
)

// Quote is the outcome of a rate lookup. An unavailable quote is not an
// error: callers simply show no USD value.
type Quote struct {
	Rate        Rate
	Status      QuoteStatus
	LastUpdated time.Time
}

// RateSource reads the USD per Φ quote from a JSON endpoint.
type RateSource struct {
	URL      string // endpoint returning a JSON document
	Path     string // JSONPath to the quote in the document, e.g. "$.usdPerPhi"
	CacheDir string        // response cache folder, os.TempDir() when empty
	MaxAge   time.Duration // how long a cached quote is fresh, a day when zero
	Client   *http.Client
}

// Quote fetches the current quote.
func (s *RateSource) Quote(ctx context.Context) Quote {
	if s == nil || s.URL == "" {
		return Quote{Status: QuoteUnavailable}
	}
	client := s.Client
	if client == nil {
		maxAge := s.MaxAge
		if maxAge <= 0 {
			maxAge = 24 * time.Hour
		}
		client = cachingClient(s.CacheDir, maxAge)
	}

	var jobj any
	from, err := getJSON(ctx, client, s.URL, &jobj)
	if err != nil {
		log.Printf("rate quote unavailable: %v", err)
		return Quote{Status: QuoteUnavailable}
	}

	rate, err := extractRate(s.Path, jobj)
	if err != nil {
		log.Printf("rate quote unavailable: %v", err)
		return Quote{Status: QuoteUnavailable}
	}

	q := Quote{Rate: rate, Status: QuoteLive, LastUpdated: from.At}
	if from.Cache != "" {
		q.Status = QuoteCached
	}
	return q
}

func extractRate(path string, jobj any) (Rate, error) {
	if path == "" {
		path = "$.usdPerPhi"
	}
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return Rate{}, fmt.Errorf("error parsing %q: %w", path, err)
	}
	// jsonpath may return a list for filter expressions: keep the first one.
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}

	var (
		rate Rate
		ok   bool
	)
	switch v := jval.(type) {
	case float64:
		rate, ok = NewRate(v)
	case string:
		rate, ok = ParseRate(v)
	}
	if !ok {
		return Rate{}, fmt.Errorf("%q is not a positive quote: %v", path, jval)
	}
	return rate, nil
}
