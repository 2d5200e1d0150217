// Package storetest checks implementations of phiterm.Store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/etnz/phiterm"
	"github.com/google/go-cmp/cmp"
)

const (
	merchantKey = "phiKEYmerchant0001"
	payerKey    = "phiKEYpayer0000001"
)

// Run runs the conformance suite against stores returned by open. Each call
// to open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) phiterm.Store) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s phiterm.Store)
	}{
		{"Invoices", testInvoices},
		{"InvoiceNotFound", testInvoiceNotFound},
		{"Settlements", testSettlements},
		{"Receipts", testReceipts},
		{"Session", testSession},
		{"Clear", testClear},
		{"ConcurrentReceipts", testConcurrentReceipts},
		{"ReceiptSeqTaken", testReceiptSeqTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.fn(t, open(t)) })
	}
}

// Invoice returns a valid invoice for amount, created at pulse.
func Invoice(t *testing.T, amount string, pulse int64) phiterm.Invoice {
	t.Helper()
	inv, err := phiterm.CreateInvoice(phiterm.InvoiceRequest{
		MerchantPhiKey: merchantKey,
		MerchantLabel:  "Corner Café",
		AmountPhi:      amount,
		CreatedPulse:   pulse,
	})
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}
	return inv
}

// Settlement returns a valid settlement paying inv in full.
func Settlement(t *testing.T, inv phiterm.Invoice) phiterm.Settlement {
	t.Helper()
	s, err := phiterm.CreateSettlement(inv, phiterm.SettlementRequest{
		FromPhiKey: payerKey,
		ToPhiKey:   inv.MerchantPhiKey,
		AmountPhi:  inv.Amount.Phi,
	})
	if err != nil {
		t.Fatalf("CreateSettlement() error: %v", err)
	}
	return s
}

// Receipt returns the receipt row of s accepted with sequence seq.
func Receipt(t *testing.T, s phiterm.Settlement, seq int64) phiterm.ReceiptRow {
	t.Helper()
	h, err := s.Hash()
	if err != nil {
		t.Fatalf("Settlement.Hash() error: %v", err)
	}
	return phiterm.ReceiptRow{
		V:              phiterm.ReceiptRowTag,
		SettlementID:   s.SettlementID,
		SettlementHash: h,
		Seq:            seq,
		ReceivedAtMs:   1_000 * seq,
		InvoiceID:      s.InvoiceID,
		MatchedInvoice: true,
		AmountPhi:      s.Amount.Phi,
		AmountMicroPhi: s.Micro(),
		FromPhiKey:     s.FromPhiKey,
		ToPhiKey:       s.ToPhiKey,
		Raw:            s,
	}
}

func invoiceIDs(list []phiterm.InvoiceRecord) []string {
	var ids []string
	for _, rec := range list {
		ids = append(ids, rec.Invoice.InvoiceID)
	}
	return ids
}

func testInvoices(t *testing.T, s phiterm.Store) {
	ctx := context.Background()
	a, b, c := Invoice(t, "1", 1), Invoice(t, "2", 2), Invoice(t, "3", 3)
	for i, inv := range []phiterm.Invoice{a, b, c} {
		rec := phiterm.InvoiceRecord{Invoice: inv, Status: phiterm.InvoiceOpen, CreatedAtMs: int64(i+1) * 1000}
		if err := s.PutInvoice(ctx, rec); err != nil {
			t.Fatalf("PutInvoice() error: %v", err)
		}
	}
	// putting twice does not duplicate
	if err := s.PutInvoice(ctx, phiterm.InvoiceRecord{Invoice: a, Status: phiterm.InvoiceOpen, CreatedAtMs: 1000}); err != nil {
		t.Fatalf("PutInvoice() error: %v", err)
	}
	if err := s.SetInvoiceStatus(ctx, b.InvoiceID, phiterm.InvoiceSettled); err != nil {
		t.Fatalf("SetInvoiceStatus() error: %v", err)
	}

	got, err := s.Invoice(ctx, b.InvoiceID)
	if err != nil {
		t.Fatalf("Invoice() error: %v", err)
	}
	want := phiterm.InvoiceRecord{Invoice: b, Status: phiterm.InvoiceSettled, CreatedAtMs: 2000}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Invoice() mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		filter phiterm.InvoiceFilter
		want   []string
	}{
		{phiterm.InvoiceFilter{}, []string{c.InvoiceID, b.InvoiceID, a.InvoiceID}},
		{phiterm.InvoiceFilter{Status: phiterm.InvoiceOpen}, []string{c.InvoiceID, a.InvoiceID}},
		{phiterm.InvoiceFilter{Status: phiterm.InvoiceSettled}, []string{b.InvoiceID}},
		{phiterm.InvoiceFilter{Status: phiterm.InvoiceExpired}, nil},
		{phiterm.InvoiceFilter{Limit: 2}, []string{c.InvoiceID, b.InvoiceID}},
	}
	for _, tt := range tests {
		list, err := s.Invoices(ctx, tt.filter)
		if err != nil {
			t.Fatalf("Invoices(%+v) error: %v", tt.filter, err)
		}
		if diff := cmp.Diff(tt.want, invoiceIDs(list)); diff != "" {
			t.Errorf("Invoices(%+v) mismatch (-want +got):\n%s", tt.filter, diff)
		}
	}
}

func testInvoiceNotFound(t *testing.T, s phiterm.Store) {
	ctx := context.Background()
	if _, err := s.Invoice(ctx, "nope"); !errors.Is(err, phiterm.ErrNotFound) {
		t.Errorf("Invoice(unknown) error = %v, want ErrNotFound", err)
	}
	if err := s.SetInvoiceStatus(ctx, "nope", phiterm.InvoiceSettled); !errors.Is(err, phiterm.ErrNotFound) {
		t.Errorf("SetInvoiceStatus(unknown) error = %v, want ErrNotFound", err)
	}
}

func testSettlements(t *testing.T, s phiterm.Store) {
	ctx := context.Background()
	var want []string
	for i := range 3 {
		st := Settlement(t, Invoice(t, fmt.Sprint(i+1), int64(i)))
		if err := s.PutSettlement(ctx, phiterm.SettlementRecord{Settlement: st, CreatedAtMs: int64(i)}); err != nil {
			t.Fatalf("PutSettlement() error: %v", err)
		}
		// twice: the inbox is keyed by settlement id and keeps the first arrival
		if err := s.PutSettlement(ctx, phiterm.SettlementRecord{Settlement: st, CreatedAtMs: int64(i) + 100}); err != nil {
			t.Fatalf("PutSettlement() error: %v", err)
		}
		want = append([]string{st.SettlementID}, want...)
	}

	for _, limit := range []int{0, 2} {
		list, err := s.Settlements(ctx, limit)
		if err != nil {
			t.Fatalf("Settlements(%d) error: %v", limit, err)
		}
		var got []string
		for _, rec := range list {
			got = append(got, rec.Settlement.SettlementID)
			if rec.CreatedAtMs >= 100 {
				t.Errorf("Settlements(%d): %.10s arrived at %d, want its first arrival", limit, rec.Settlement.SettlementID, rec.CreatedAtMs)
			}
		}
		w := want
		if limit > 0 {
			w = want[:limit]
		}
		if diff := cmp.Diff(w, got); diff != "" {
			t.Errorf("Settlements(%d) mismatch (-want +got):\n%s", limit, diff)
		}
	}
}

func testReceipts(t *testing.T, s phiterm.Store) {
	ctx := context.Background()
	var rows []phiterm.ReceiptRow
	for i := range 3 {
		rows = append(rows, Receipt(t, Settlement(t, Invoice(t, "9", int64(i))), int64(i+1)))
	}
	// stored out of order, listed by seq
	for _, i := range []int{2, 0, 1, 0} {
		if err := s.PutReceipt(ctx, rows[i]); err != nil {
			t.Fatalf("PutReceipt() error: %v", err)
		}
	}

	got, err := s.Receipts(ctx)
	if err != nil {
		t.Fatalf("Receipts() error: %v", err)
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Errorf("Receipts() mismatch (-want +got):\n%s", diff)
	}

	for _, tt := range []struct {
		id   string
		want bool
	}{{rows[1].SettlementID, true}, {"unknown", false}} {
		has, err := s.HasReceipt(ctx, tt.id)
		if err != nil || has != tt.want {
			t.Errorf("HasReceipt(%.10s) = %v, %v, want %v", tt.id, has, err, tt.want)
		}
	}
}

func testSession(t *testing.T, s phiterm.Store) {
	ctx := context.Background()
	got, err := s.Session(ctx)
	if err != nil || got != nil {
		t.Fatalf("Session() on an empty store = %v, %v, want nil", got, err)
	}

	meta := phiterm.PortalMeta{
		V:              phiterm.PortalTag,
		Canon:          phiterm.CanonJCS,
		HashAlg:        phiterm.HashSHA256,
		PortalID:       "p1",
		MerchantPhiKey: merchantKey,
		Status:         phiterm.PortalArmed,
		TotalMicroPhi:  phiterm.NewMicro(0),
		TotalPhi:       "0",
		RollingRoot:    phiterm.RootSeed(),
	}

	tests := []struct {
		name    string
		version int64
		status  phiterm.PortalStatus
		wantErr error
	}{
		{"version must start at 1", 2, phiterm.PortalArmed, phiterm.ErrStaleSession},
		{"first write", 1, phiterm.PortalArmed, nil},
		{"replayed write", 1, phiterm.PortalOpen, phiterm.ErrStaleSession},
		{"next write", 2, phiterm.PortalOpen, nil},
		{"skipped version", 4, phiterm.PortalClosed, phiterm.ErrStaleSession},
	}
	for _, tt := range tests {
		meta.Version, meta.Status = tt.version, tt.status
		if err := s.PutSession(ctx, meta); !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: PutSession() error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}

	got, err = s.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	meta.Version, meta.Status = 2, phiterm.PortalOpen
	if diff := cmp.Diff(&meta, got); diff != "" {
		t.Errorf("Session() mismatch (-want +got):\n%s", diff)
	}
}

func testClear(t *testing.T, s phiterm.Store) {
	ctx := context.Background()
	inv := Invoice(t, "1", 1)
	st := Settlement(t, inv)
	if err := s.PutInvoice(ctx, phiterm.InvoiceRecord{Invoice: inv, Status: phiterm.InvoiceOpen}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutSettlement(ctx, phiterm.SettlementRecord{Settlement: st}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutReceipt(ctx, Receipt(t, st, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.PutSession(ctx, phiterm.PortalMeta{PortalID: "p", Status: phiterm.PortalOpen, Version: 1}); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	invoices, _ := s.Invoices(ctx, phiterm.InvoiceFilter{})
	settlements, _ := s.Settlements(ctx, 0)
	receipts, _ := s.Receipts(ctx)
	session, _ := s.Session(ctx)
	if len(invoices)+len(settlements)+len(receipts) != 0 || session != nil {
		t.Errorf("after Clear() got %d invoices, %d settlements, %d receipts, session %v, want none",
			len(invoices), len(settlements), len(receipts), session)
	}
	// the version history restarts
	if err := s.PutSession(ctx, phiterm.PortalMeta{PortalID: "q", Status: phiterm.PortalArmed, Version: 1}); err != nil {
		t.Errorf("PutSession() after Clear() error: %v", err)
	}
}

func testConcurrentReceipts(t *testing.T, s phiterm.Store) {
	ctx := context.Background()
	row := Receipt(t, Settlement(t, Invoice(t, "1", 1)), 1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.PutReceipt(ctx, row); err != nil {
				t.Errorf("PutReceipt() error: %v", err)
			}
		}()
	}
	wg.Wait()

	rows, err := s.Receipts(ctx)
	if err != nil {
		t.Fatalf("Receipts() error: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Receipts() = %d rows, want 1", len(rows))
	}
}

func testReceiptSeqTaken(t *testing.T, s phiterm.Store) {
	ctx := context.Background()
	first := Receipt(t, Settlement(t, Invoice(t, "1", 1)), 1)
	other := Receipt(t, Settlement(t, Invoice(t, "2", 1)), 1)
	if err := s.PutReceipt(ctx, first); err != nil {
		t.Fatalf("PutReceipt() error: %v", err)
	}
	if err := s.PutReceipt(ctx, other); !errors.Is(err, phiterm.ErrStaleSession) {
		t.Errorf("PutReceipt() of a taken seq error = %v, want ErrStaleSession", err)
	}
	// the holder of the seq can put its receipt again
	if err := s.PutReceipt(ctx, first); err != nil {
		t.Errorf("PutReceipt() replay error: %v", err)
	}

	rows, err := s.Receipts(ctx)
	if err != nil {
		t.Fatalf("Receipts() error: %v", err)
	}
	if len(rows) != 1 || rows[0].SettlementID != first.SettlementID {
		t.Errorf("Receipts() = %d rows, want only the first holder of seq 1", len(rows))
	}
	if has, _ := s.HasReceipt(ctx, other.SettlementID); has {
		t.Errorf("HasReceipt() of the refused receipt = true")
	}
}
