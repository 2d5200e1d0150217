package phiterm

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

const (
	merchantKey = "phiKEYmerchant0001"
	payerKey    = "phiKEYpayer0000001"
	strangerKey = "phiKEYstranger0001"
)

// testClock returns a clock ticking one second per call, from a fixed
// instant well after the Kai genesis.
func testClock() func() time.Time {
	var mu sync.Mutex
	now := time.UnixMilli(1715323541888).Add(365 * 24 * time.Hour)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// merchantAnchor is a JSON merchant glyph.
func merchantAnchor(t *testing.T) Anchor {
	t.Helper()
	text, err := json.Marshal(map[string]any{"phiKey": merchantKey, "name": "Corner Café"})
	if err != nil {
		t.Fatal(err)
	}
	return Anchor{Name: "corner.json", Kind: AnchorJSON, Text: text}
}

// openRegister returns a register armed and opened for merchantKey.
func openRegister(t *testing.T) (*Register, *MemStore) {
	t.Helper()
	store := NewMemStore()
	r := NewRegister(store, nil, nil)
	r.Now = testClock()
	ctx := context.Background()
	if _, err := r.Arm(ctx, merchantAnchor(t)); err != nil {
		t.Fatalf("Arm() error: %v", err)
	}
	if _, err := r.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return r, store
}

func mustInvoice(t *testing.T, amount string) Invoice {
	t.Helper()
	inv, err := CreateInvoice(InvoiceRequest{MerchantPhiKey: merchantKey, MerchantLabel: "Corner Café", AmountPhi: amount, CreatedPulse: 100})
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}
	return inv
}

func mustSettle(t *testing.T, inv Invoice, to, amount string) Settlement {
	t.Helper()
	s, err := CreateSettlement(inv, SettlementRequest{FromPhiKey: payerKey, ToPhiKey: to, AmountPhi: amount})
	if err != nil {
		t.Fatalf("CreateSettlement() error: %v", err)
	}
	return s
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
