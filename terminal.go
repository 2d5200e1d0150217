package phiterm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Terminal is the payer side inbox: it keeps the invoices it was shown and
// the settlements it received, and settles invoices as their payments
// arrive. Unlike a Register it has no session and accepts everything.
type Terminal struct {
	store Store
	Now   func() time.Time
	mu    sync.Mutex
}

// NewTerminal returns a terminal over store.
func NewTerminal(store Store) *Terminal {
	return &Terminal{store: store, Now: time.Now}
}

// Ingest decodes payload and files it in the inbox.
func (t *Terminal) Ingest(ctx context.Context, payload []byte) IngestResult {
	p, err := DecodePayload(payload)
	if err != nil {
		return ingestFailure(err, "Could not parse payload.")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if p.Invoice != nil {
		if err := p.Invoice.Verify(); err != nil {
			return ingestFailure(err, "Invoice rejected.")
		}
		_, err := t.store.Invoice(ctx, p.Invoice.InvoiceID)
		switch {
		case err == nil:
			return IngestResult{OK: true, Kind: IngestInvoice, Invoice: p.Invoice, Note: "Invoice already saved."}
		case !errors.Is(err, ErrNotFound):
			return ingestFailure(err, "Invoice not saved.")
		}
		rec := InvoiceRecord{Invoice: *p.Invoice, Status: InvoiceOpen, CreatedAtMs: t.Now().UnixMilli()}
		if err := t.store.PutInvoice(ctx, rec); err != nil {
			return ingestFailure(err, "Invoice not saved.")
		}
		return IngestResult{OK: true, Kind: IngestInvoice, Invoice: p.Invoice, Note: "Invoice saved."}
	}

	s := *p.Settlement
	if err := s.Verify(); err != nil {
		return ingestFailure(err, "Settlement rejected.")
	}
	matched, err := t.file(ctx, s)
	if err != nil {
		return ingestFailure(err, "Settlement not saved.")
	}
	if matched == "" {
		return IngestResult{OK: true, Kind: IngestSettlement, Settlement: p.Settlement, Note: "Settlement received (unmatched, kept in the inbox)."}
	}
	return IngestResult{OK: true, Kind: IngestSettlement, Settlement: p.Settlement, MatchedInvoiceID: matched, Note: "Settled (matched invoice)."}
}

// file saves s and settles the OPEN invoice it matches, returning its id.
func (t *Terminal) file(ctx context.Context, s Settlement) (string, error) {
	if err := t.store.PutSettlement(ctx, SettlementRecord{Settlement: s, CreatedAtMs: t.Now().UnixMilli()}); err != nil {
		return "", err
	}
	open, err := t.store.Invoices(ctx, InvoiceFilter{Status: InvoiceOpen})
	if err != nil {
		return "", err
	}
	for _, rec := range open {
		if MatchesInvoice(s, rec.Invoice) {
			if err := t.store.SetInvoiceStatus(ctx, rec.Invoice.InvoiceID, InvoiceSettled); err != nil {
				return "", fmt.Errorf("cannot settle invoice %q: %w", rec.Invoice.InvoiceID, err)
			}
			return rec.Invoice.InvoiceID, nil
		}
	}
	return "", nil
}

// Pay creates the settlement of inv from the payer key fromPhiKey, files it
// in the inbox (settling inv) and returns it ready to be delivered to the
// merchant.
func (t *Terminal) Pay(ctx context.Context, inv Invoice, fromPhiKey string, memo string) (Settlement, error) {
	if err := inv.Verify(); err != nil {
		return Settlement{}, err
	}
	s, err := CreateSettlement(inv, SettlementRequest{
		FromPhiKey:    fromPhiKey,
		ToPhiKey:      inv.MerchantPhiKey,
		AmountPhi:     inv.Amount.Phi,
		Memo:          memo,
		ReceivedPulse: PulseAt(t.Now()),
	})
	if err != nil {
		return Settlement{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.store.Invoice(ctx, inv.InvoiceID); errors.Is(err, ErrNotFound) {
		if err := t.store.PutInvoice(ctx, InvoiceRecord{Invoice: inv, Status: InvoiceOpen, CreatedAtMs: t.Now().UnixMilli()}); err != nil {
			return Settlement{}, err
		}
	} else if err != nil {
		return Settlement{}, err
	}
	if _, err := t.file(ctx, s); err != nil {
		return Settlement{}, err
	}
	return s, nil
}
