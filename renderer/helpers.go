package renderer

import (
	"time"

	"github.com/etnz/phiterm"
)

// shortID abbreviates a hex id for tables.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}

// stamp formats a unix millisecond timestamp, or returns "" for zero.
func stamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05 UTC")
}

// usd formats m in USD with quote, or returns "" when no rate is known.
func usd(m phiterm.Micro, quote phiterm.Quote) string {
	if quote.Status == phiterm.QuoteUnavailable {
		return ""
	}
	s, _ := phiterm.FormatUSDFromMicro(m, quote.Rate)
	return s
}

// quoteLabel describes where the USD values come from.
func quoteLabel(quote phiterm.Quote) string {
	switch quote.Status {
	case phiterm.QuoteLive:
		return "live rate " + quote.Rate.String()
	case phiterm.QuoteCached:
		return "cached rate " + quote.Rate.String()
	default:
		return ""
	}
}
