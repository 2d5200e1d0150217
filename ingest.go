package phiterm

import (
	"context"
	"errors"
)

// IngestKind tells what an ingested payload turned out to be.
type IngestKind string

const (
	IngestInvoice    IngestKind = "invoice"
	IngestSettlement IngestKind = "settlement"
	IngestError      IngestKind = "error"
)

// IngestResult is the outcome of an ingestion, with a short human note.
type IngestResult struct {
	OK   bool
	Kind IngestKind

	Invoice    *Invoice
	Settlement *Settlement

	// Accept is set for settlements offered to a portal.
	Accept *AcceptResult
	// MatchedInvoiceID is set when a settlement paid a known invoice.
	MatchedInvoiceID string

	Note string
	Err  error // set when OK is false
}

func ingestFailure(err error, note string) IngestResult {
	return IngestResult{Kind: IngestError, Err: err, Note: note}
}

// Ingest is the entry point of every transport: it decodes payload in any
// wire encoding, imports invoices as OPEN and offers settlements to the
// portal.
func (r *Register) Ingest(ctx context.Context, payload []byte) IngestResult {
	p, err := DecodePayload(payload)
	if err != nil {
		return ingestFailure(err, "Could not parse payload.")
	}

	if p.Invoice != nil {
		added, err := r.importInvoice(ctx, *p.Invoice)
		if err != nil {
			return ingestFailure(err, "Invoice rejected.")
		}
		note := "Invoice imported."
		if !added {
			note = "Invoice already known."
		}
		return IngestResult{OK: true, Kind: IngestInvoice, Invoice: p.Invoice, Note: note}
	}

	res, err := r.Accept(ctx, *p.Settlement)
	if err != nil {
		note := "Settlement rejected."
		if errors.Is(err, ErrIllegalTransition) {
			note = "Portal not open. Open the register to accept receipts."
		}
		return ingestFailure(err, note)
	}
	return IngestResult{
		// a replay is not a failure: the receipt is already there.
		OK:               res.Accepted || res.Duplicate,
		Kind:             IngestSettlement,
		Settlement:       p.Settlement,
		Accept:           &res,
		MatchedInvoiceID: res.InvoiceID,
		Note:             res.Note,
		Err:              res.Reason,
	}
}
