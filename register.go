package phiterm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Register runs a merchant portal over a Store.
//
// It holds no copy of the session: every operation reads the session, applies
// a pure transition and writes the new version back. Read-modify-write cycles
// are serialized, so a Register can be shared by concurrent transports.
type Register struct {
	store     Store
	extractor Extractor
	presence  PresenceVerifier

	// Now is the register clock, time.Now by default.
	Now func() time.Time

	mu sync.Mutex
}

// NewRegister returns a register over store. A nil extractor defaults to a
// MetadataExtractor and a nil presence verifier to AlwaysPresent.
func NewRegister(store Store, extractor Extractor, presence PresenceVerifier) *Register {
	if extractor == nil {
		extractor = MetadataExtractor{}
	}
	if presence == nil {
		presence = AlwaysPresent
	}
	return &Register{store: store, extractor: extractor, presence: presence, Now: time.Now}
}

// Store returns the underlying store.
func (r *Register) Store() Store { return r.store }

// Status returns the current session, nil when the device is LOCKED.
func (r *Register) Status(ctx context.Context) (*PortalMeta, error) {
	return r.store.Session(ctx)
}

// session loads the current session, failing on a LOCKED device.
func (r *Register) session(ctx context.Context) (PortalMeta, error) {
	meta, err := r.store.Session(ctx)
	if err != nil {
		return PortalMeta{}, err
	}
	if meta == nil {
		return PortalMeta{}, fmt.Errorf("%w: no active portal session, arm a merchant glyph first", ErrIllegalTransition)
	}
	return *meta, nil
}

// Arm loads the merchant identity from anchor and arms a fresh portal. It is
// a hard reset: every invoice, settlement and receipt of the device is wiped.
func (r *Register) Arm(ctx context.Context, anchor Anchor) (PortalMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, err := r.store.Session(ctx)
	if err != nil {
		return PortalMeta{}, err
	}
	if prev != nil && prev.Status == PortalOpen {
		return PortalMeta{}, fmt.Errorf("%w: cannot arm an OPEN portal, close it first", ErrIllegalTransition)
	}
	id, err := r.extractor.Extract(ctx, anchor.Text, anchor.Kind)
	if err != nil {
		return PortalMeta{}, err
	}
	meta, err := ArmPortal(prev, anchor, id, r.Now())
	if err != nil {
		return PortalMeta{}, err
	}

	if err := r.store.Clear(ctx); err != nil {
		return PortalMeta{}, fmt.Errorf("cannot reset the ledger: %w", err)
	}
	if err := r.store.PutSession(ctx, meta); err != nil {
		return PortalMeta{}, err
	}
	log.Printf("portal %.10s armed for %q", meta.PortalID, meta.MerchantLabel)
	return meta, nil
}

// verifyPresence asks the owner to confirm purpose.
func (r *Register) verifyPresence(ctx context.Context, purpose Purpose) (Presence, error) {
	p, err := r.presence.Verify(ctx, purpose)
	if err != nil {
		return Presence{}, fmt.Errorf("presence verification for %s failed: %w", purpose, err)
	}
	if !p.OK {
		return Presence{}, fmt.Errorf("%w (%s)", ErrPresenceDeclined, purpose)
	}
	return p, nil
}

// Open verifies the owner presence and opens an ARMED portal.
func (r *Register) Open(ctx context.Context) (PortalMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := r.session(ctx)
	if err != nil {
		return PortalMeta{}, err
	}
	if meta.Status != PortalArmed {
		return PortalMeta{}, fmt.Errorf("%w: cannot open an %s portal", ErrIllegalTransition, meta.Status)
	}
	if _, err := r.verifyPresence(ctx, PurposeOpen); err != nil {
		return PortalMeta{}, err
	}
	next, err := OpenPortal(meta, r.Now())
	if err != nil {
		return PortalMeta{}, err
	}
	if err := r.store.PutSession(ctx, next); err != nil {
		return PortalMeta{}, err
	}
	return next, nil
}

// InvoiceDraft is what the merchant types to issue an invoice.
type InvoiceDraft struct {
	AmountPhi    string
	Memo         string
	ExpiresPulse int64
}

// IssueInvoice creates an invoice for the merchant of the OPEN portal and
// records it as OPEN.
func (r *Register) IssueInvoice(ctx context.Context, draft InvoiceDraft) (Invoice, error) {
	meta, err := r.session(ctx)
	if err != nil {
		return Invoice{}, err
	}
	if meta.Status != PortalOpen {
		return Invoice{}, fmt.Errorf("%w: open the portal first", ErrIllegalTransition)
	}

	now := r.Now()
	inv, err := CreateInvoice(InvoiceRequest{
		MerchantPhiKey: meta.MerchantPhiKey,
		MerchantLabel:  meta.MerchantLabel,
		AmountPhi:      draft.AmountPhi,
		Memo:           draft.Memo,
		CreatedPulse:   PulseAt(now),
		ExpiresPulse:   draft.ExpiresPulse,
	})
	if err != nil {
		return Invoice{}, err
	}
	if err := r.store.PutInvoice(ctx, InvoiceRecord{Invoice: inv, Status: InvoiceOpen, CreatedAtMs: now.UnixMilli()}); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// importInvoice records a received invoice as OPEN, unless it is already known.
func (r *Register) importInvoice(ctx context.Context, inv Invoice) (bool, error) {
	if err := inv.Verify(); err != nil {
		return false, err
	}
	if _, err := r.session(ctx); err != nil {
		return false, err
	}
	_, err := r.store.Invoice(ctx, inv.InvoiceID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	return true, r.store.PutInvoice(ctx, InvoiceRecord{Invoice: inv, Status: InvoiceOpen, CreatedAtMs: r.Now().UnixMilli()})
}

// maxWriteAttempts bounds the read-modify-write cycles started over after
// losing a race with another writer of the store.
const maxWriteAttempts = 5

// ErrLedgerConflict is returned when two stored receipts hold the same seq.
var ErrLedgerConflict = errors.New("conflicting receipts in the ledger")

// recover folds receipts stored beyond the session counters, left by an
// interrupted Accept, back into meta.
func (r *Register) recover(ctx context.Context, meta PortalMeta) (PortalMeta, error) {
	receipts, err := r.store.Receipts(ctx)
	if err != nil {
		return PortalMeta{}, err
	}
	for i := 1; i < len(receipts); i++ {
		if a, b := receipts[i-1], receipts[i]; a.Seq == b.Seq {
			return PortalMeta{}, fmt.Errorf("%w: settlements %.10s and %.10s both hold seq %d", ErrLedgerConflict, a.SettlementID, b.SettlementID, a.Seq)
		}
	}
	if len(receipts) <= meta.ReceiveCount {
		return meta, nil
	}
	next, applied := ReplayReceipts(meta, receipts)
	if len(applied) == 0 {
		return meta, nil
	}
	if err := r.store.PutSession(ctx, next); err != nil {
		return PortalMeta{}, err
	}
	for _, row := range applied {
		if row.MatchedInvoice {
			if err := r.store.SetInvoiceStatus(ctx, row.InvoiceID, InvoiceSettled); err != nil && !errors.Is(err, ErrNotFound) {
				return PortalMeta{}, err
			}
		}
	}
	log.Printf("recovered %d receipt(s) missing from the session", len(applied))
	return next, nil
}

// refresh loads the session and folds in the receipts it misses, starting
// over while other writers move the session on.
func (r *Register) refresh(ctx context.Context) (PortalMeta, error) {
	for attempt := 1; ; attempt++ {
		meta, err := r.session(ctx)
		if err != nil {
			return PortalMeta{}, err
		}
		meta, err = r.recover(ctx, meta)
		if !errors.Is(err, ErrStaleSession) || attempt == maxWriteAttempts {
			return meta, err
		}
	}
}

// openInvoices lists OPEN invoices that have not lapsed at pulse.
func (r *Register) openInvoices(ctx context.Context, pulse int64) ([]Invoice, error) {
	records, err := r.store.Invoices(ctx, InvoiceFilter{Status: InvoiceOpen})
	if err != nil {
		return nil, err
	}
	var list []Invoice
	for _, rec := range records {
		if !rec.Invoice.Expired(pulse) {
			list = append(list, rec.Invoice)
		}
	}
	return list, nil
}

// Accept offers a settlement to the OPEN portal.
//
// The settlement is kept in the inbox whatever the outcome. Policy
// rejections come back in the result; errors are reserved for malformed
// input, illegal state and storage failures.
func (r *Register) Accept(ctx context.Context, s Settlement) (AcceptResult, error) {
	if err := s.Verify(); err != nil {
		return AcceptResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 1; ; attempt++ {
		res, err := r.accept(ctx, s)
		if !errors.Is(err, ErrStaleSession) || attempt == maxWriteAttempts {
			return res, err
		}
		log.Printf("settlement %.10s raced another writer of the store, retrying", s.SettlementID)
	}
}

// accept runs one read-modify-write cycle of Accept. It fails with
// ErrStaleSession, before crediting anything, when another writer took the
// next seq first.
func (r *Register) accept(ctx context.Context, s Settlement) (AcceptResult, error) {
	meta, err := r.refresh(ctx)
	if err != nil {
		return AcceptResult{}, err
	}
	if meta.Status != PortalOpen {
		return AcceptResult{}, fmt.Errorf("%w: portal is %s, open the register to accept receipts", ErrIllegalTransition, meta.Status)
	}

	now := r.Now()
	if err := r.store.PutSettlement(ctx, SettlementRecord{Settlement: s, CreatedAtMs: now.UnixMilli()}); err != nil {
		return AcceptResult{}, err
	}

	if s.ToPhiKey != meta.MerchantPhiKey {
		return rejected(meta, ErrMisaddressed, "Settlement not addressed to this merchant."), nil
	}
	exists, err := r.store.HasReceipt(ctx, s.SettlementID)
	if err != nil {
		return AcceptResult{}, err
	}
	if exists {
		res := rejected(meta, ErrDuplicateReceipt, "Receipt already recorded.")
		res.Duplicate = true
		return res, nil
	}

	open, err := r.openInvoices(ctx, PulseAt(now))
	if err != nil {
		return AcceptResult{}, err
	}
	res, err := AppendSettlement(meta, s, open, now)
	if err != nil || !res.Accepted {
		return res, err
	}

	// the receipt goes first: a session write lost after it is recovered
	// from the receipts on the next call.
	if err := r.store.PutReceipt(ctx, *res.Receipt); err != nil {
		return AcceptResult{}, err
	}
	if err := r.store.PutSession(ctx, res.Meta); err != nil {
		if !errors.Is(err, ErrStaleSession) {
			return AcceptResult{}, err
		}
		// another writer moved the session on, ours is rebuilt from the
		// stored receipts
		if res.Meta, err = r.refresh(ctx); err != nil {
			return AcceptResult{}, err
		}
	}
	if res.Matched {
		if err := r.store.SetInvoiceStatus(ctx, res.InvoiceID, InvoiceSettled); err != nil {
			return AcceptResult{}, err
		}
	}
	log.Printf("receipt #%d %.10s accepted: %s Φ", res.Receipt.Seq, s.SettlementID, s.Amount.Phi)
	return res, nil
}

// Close verifies the owner presence, closes the OPEN portal and returns its
// settlement document.
func (r *Register) Close(ctx context.Context) (SettlementDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := r.session(ctx)
	if err != nil {
		return SettlementDocument{}, err
	}
	if meta.Status != PortalOpen {
		return SettlementDocument{}, fmt.Errorf("%w: cannot close an %s portal", ErrIllegalTransition, meta.Status)
	}
	p, err := r.verifyPresence(ctx, PurposeClose)
	if err != nil {
		return SettlementDocument{}, err
	}
	if meta, err = r.refresh(ctx); err != nil {
		return SettlementDocument{}, err
	}
	if meta.Status != PortalOpen {
		return SettlementDocument{}, fmt.Errorf("%w: cannot close an %s portal", ErrIllegalTransition, meta.Status)
	}

	receipts, err := r.store.Receipts(ctx)
	if err != nil {
		return SettlementDocument{}, err
	}
	next, doc, err := ClosePortal(meta, receipts, p.Proof, r.Now())
	if err != nil {
		return SettlementDocument{}, err
	}
	if err := r.store.PutSession(ctx, next); err != nil {
		return SettlementDocument{}, err
	}
	log.Printf("portal %.10s closed with %d receipt(s), %s Φ", next.PortalID, next.ReceiveCount, next.TotalPhi)
	return doc, nil
}

// Document rebuilds the settlement document of a CLOSED portal from the
// store. The owner close proof is not persisted and is left out.
func (r *Register) Document(ctx context.Context) (SettlementDocument, error) {
	meta, err := r.session(ctx)
	if err != nil {
		return SettlementDocument{}, err
	}
	if meta.Status != PortalClosed {
		return SettlementDocument{}, fmt.Errorf("%w: portal is %s, close it first", ErrIllegalTransition, meta.Status)
	}
	receipts, err := r.store.Receipts(ctx)
	if err != nil {
		return SettlementDocument{}, err
	}
	return NewSettlementDocument(meta, receipts, nil), nil
}

// SetAllowDirectReceives toggles acceptance of settlements without invoice.
func (r *Register) SetAllowDirectReceives(ctx context.Context, allow bool) (PortalMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := r.session(ctx)
	if err != nil {
		return PortalMeta{}, err
	}
	next, err := SetDirectReceives(meta, allow)
	if err != nil {
		return PortalMeta{}, err
	}
	if err := r.store.PutSession(ctx, next); err != nil {
		return PortalMeta{}, err
	}
	return next, nil
}

// ErrInvoiceNotOpen is returned when changing an invoice that is no longer OPEN.
var ErrInvoiceNotOpen = errors.New("invoice is not open")

// CancelInvoice withdraws an OPEN invoice: it will no longer match.
func (r *Register) CancelInvoice(ctx context.Context, invoiceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.Invoice(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("invoice %q: %w", invoiceID, err)
	}
	if rec.Status != InvoiceOpen {
		return fmt.Errorf("invoice %q is %s: %w", invoiceID, rec.Status, ErrInvoiceNotOpen)
	}
	return r.store.SetInvoiceStatus(ctx, invoiceID, InvoiceCanceled)
}

// ExpireInvoices marks the OPEN invoices lapsed at the current pulse as
// EXPIRED and returns their ids.
func (r *Register) ExpireInvoices(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pulse := PulseAt(r.Now())
	records, err := r.store.Invoices(ctx, InvoiceFilter{Status: InvoiceOpen})
	if err != nil {
		return nil, err
	}
	var expired []string
	for _, rec := range records {
		if !rec.Invoice.Expired(pulse) {
			continue
		}
		if err := r.store.SetInvoiceStatus(ctx, rec.Invoice.InvoiceID, InvoiceExpired); err != nil {
			return expired, err
		}
		expired = append(expired, rec.Invoice.InvoiceID)
	}
	return expired, nil
}

// PatchAnchor returns the anchor glyph with the current session embedded,
// so that the merchant can carry the portal state in their glyph.
func (r *Register) PatchAnchor(ctx context.Context, anchor Anchor) ([]byte, error) {
	meta, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	if anchor.Kind == AnchorSVG {
		return PatchAnchorSVG(anchor.Text, meta)
	}
	return PatchAnchorJSON(anchor.Text, meta)
}
