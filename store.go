package phiterm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleSession is returned when a session write is not exactly one
	// version ahead of the stored session, or when a receipt claims a seq
	// already held by another settlement. Both mean another writer got there
	// first.
	ErrStaleSession = errors.New("stale session write")
)

// InvoiceRecord is an invoice with its store-side status.
type InvoiceRecord struct {
	Invoice     Invoice       `json:"invoice"`
	Status      InvoiceStatus `json:"status"`
	CreatedAtMs int64         `json:"createdAtMs"`
}

// SettlementRecord is a settlement as it arrived, matched or not.
type SettlementRecord struct {
	Settlement  Settlement `json:"settlement"`
	CreatedAtMs int64      `json:"createdAtMs"`
}

// InvoiceFilter selects invoices. The zero value lists them all.
type InvoiceFilter struct {
	Status InvoiceStatus // empty for every status
	Limit  int           // 0 for no limit
}

// Store persists a portal: its invoices, the settlement inbox, accepted
// receipts and the single session record.
//
// Puts are atomic and idempotent per id: putting an existing invoice replaces
// it, while settlements and receipts are written once.
// Implementations are safe for concurrent use.
type Store interface {
	PutInvoice(ctx context.Context, rec InvoiceRecord) error
	// Invoice returns ErrNotFound for an unknown id.
	Invoice(ctx context.Context, invoiceID string) (InvoiceRecord, error)
	SetInvoiceStatus(ctx context.Context, invoiceID string, status InvoiceStatus) error
	// Invoices lists invoices, most recent first.
	Invoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceRecord, error)

	// PutSettlement keeps the first record of a settlement id.
	PutSettlement(ctx context.Context, rec SettlementRecord) error
	// Settlements lists the inbox, most recent first. limit 0 lists all.
	Settlements(ctx context.Context, limit int) ([]SettlementRecord, error)

	// PutReceipt fails with ErrStaleSession when row.Seq is held by the
	// receipt of another settlement.
	PutReceipt(ctx context.Context, row ReceiptRow) error
	HasReceipt(ctx context.Context, settlementID string) (bool, error)
	// Receipts lists every receipt in acceptance order.
	Receipts(ctx context.Context) ([]ReceiptRow, error)

	// Session returns nil when the device is LOCKED.
	Session(ctx context.Context) (*PortalMeta, error)
	// PutSession fails with ErrStaleSession unless meta.Version is the
	// stored version plus one (or 1 for a LOCKED device).
	PutSession(ctx context.Context, meta PortalMeta) error

	// Clear removes every record, session included.
	Clear(ctx context.Context) error
}

// filterInvoices applies filter to records, sorted most recent first.
func filterInvoices(records []InvoiceRecord, filter InvoiceFilter) []InvoiceRecord {
	var list []InvoiceRecord
	for _, rec := range records {
		if filter.Status == "" || rec.Status == filter.Status {
			list = append(list, rec)
		}
	}
	slices.SortFunc(list, func(a, b InvoiceRecord) int {
		return cmp.Or(cmp.Compare(b.CreatedAtMs, a.CreatedAtMs), cmp.Compare(a.Invoice.InvoiceID, b.Invoice.InvoiceID))
	})
	if filter.Limit > 0 && len(list) > filter.Limit {
		list = list[:filter.Limit]
	}
	return list
}

func sortSettlements(records []SettlementRecord, limit int) []SettlementRecord {
	slices.SortFunc(records, func(a, b SettlementRecord) int {
		return cmp.Or(cmp.Compare(b.CreatedAtMs, a.CreatedAtMs), cmp.Compare(a.Settlement.SettlementID, b.Settlement.SettlementID))
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// checkSeq refuses row when its seq is taken by another settlement.
func checkSeq(rows []ReceiptRow, row ReceiptRow) error {
	for _, r := range rows {
		if r.Seq == row.Seq && r.SettlementID != row.SettlementID {
			return fmt.Errorf("%w: receipt seq %d is held by settlement %.10s", ErrStaleSession, row.Seq, r.SettlementID)
		}
	}
	return nil
}

// checkVersion enforces the single version step of session writes.
func checkVersion(stored *PortalMeta, next PortalMeta) error {
	var current int64
	if stored != nil {
		current = stored.Version
	}
	if next.Version != current+1 {
		return fmt.Errorf("%w: version %d over stored version %d", ErrStaleSession, next.Version, current)
	}
	return nil
}
