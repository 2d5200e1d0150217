package renderer

import "github.com/etnz/phiterm"

// Receipt is one row of the receipts table.
type Receipt struct {
	Seq          int64
	SettlementID string
	InvoiceID    string
	Matched      bool
	AmountPhi    string
	AmountUSD    string
	From         string
	ReceivedAt   string
}

// Receipts is the view of accepted receipts, in acceptance order.
type Receipts struct {
	Rows     []Receipt
	TotalPhi string
	TotalUSD string
	Quote    string
}

// NewReceipts builds the receipts view of rows.
func NewReceipts(rows []phiterm.ReceiptRow, quote phiterm.Quote) *Receipts {
	total := phiterm.NewMicro(0)
	r := &Receipts{Quote: quoteLabel(quote)}
	for _, row := range rows {
		total = total.Add(row.AmountMicroPhi)
		r.Rows = append(r.Rows, Receipt{
			Seq:          row.Seq,
			SettlementID: shortID(row.SettlementID),
			InvoiceID:    shortID(row.InvoiceID),
			Matched:      row.MatchedInvoice,
			AmountPhi:    row.AmountPhi,
			AmountUSD:    usd(row.AmountMicroPhi, quote),
			From:         row.FromPhiKey,
			ReceivedAt:   stamp(row.ReceivedAtMs),
		})
	}
	r.TotalPhi = total.Phi()
	r.TotalUSD = usd(total, quote)
	return r
}
