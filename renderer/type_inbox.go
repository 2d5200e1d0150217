package renderer

import "github.com/etnz/phiterm"

// InvoiceLine is one row of the invoice history.
type InvoiceLine struct {
	InvoiceID    string
	Status       string
	AmountPhi    string
	Memo         string
	CreatedAt    string
	CreatedPulse int64
	ExpiresPulse int64
}

// SettlementLine is one row of the settlement inbox.
type SettlementLine struct {
	SettlementID string
	InvoiceID    string
	From         string
	To           string
	AmountPhi    string
	Memo         string
	TxRef        string
	ReceivedAt   string
}

// Inbox is the view of invoice history and received settlements.
type Inbox struct {
	Invoices    []InvoiceLine
	Settlements []SettlementLine
}

func NewInbox(invoices []phiterm.InvoiceRecord, settlements []phiterm.SettlementRecord) *Inbox {
	in := &Inbox{}
	for _, rec := range invoices {
		in.Invoices = append(in.Invoices, InvoiceLine{
			InvoiceID:    shortID(rec.Invoice.InvoiceID),
			Status:       string(rec.Status),
			AmountPhi:    rec.Invoice.Amount.Phi,
			Memo:         rec.Invoice.Memo,
			CreatedAt:    stamp(rec.CreatedAtMs),
			CreatedPulse: rec.Invoice.CreatedPulse,
			ExpiresPulse: rec.Invoice.ExpiresPulse,
		})
	}
	for _, rec := range settlements {
		s := rec.Settlement
		in.Settlements = append(in.Settlements, SettlementLine{
			SettlementID: shortID(s.SettlementID),
			InvoiceID:    shortID(s.InvoiceID),
			From:         s.FromPhiKey,
			To:           s.ToPhiKey,
			AmountPhi:    s.Amount.Phi,
			Memo:         s.Memo,
			TxRef:        s.TxRef,
			ReceivedAt:   stamp(rec.CreatedAtMs),
		})
	}
	return in
}
