package renderer

import "github.com/etnz/phiterm"

// Document is the view of a closed portal settlement and its audit.
type Document struct {
	PortalID       string
	Label          string
	MerchantPhiKey string
	OpenedAt       string
	ClosedAt       string
	ClosedPulse    int64
	ReceiveCount   int
	TotalPhi       string
	TotalUSD       string
	RollingRoot    string
	OwnerProof     bool

	*Receipts

	Verified bool
	Problems []string
}

// NewDocument builds the view of doc, auditing it on the way.
func NewDocument(doc phiterm.SettlementDocument, quote phiterm.Quote) *Document {
	d := &Document{
		PortalID:       doc.PortalID,
		Label:          doc.MerchantLabel,
		MerchantPhiKey: doc.MerchantPhiKey,
		OpenedAt:       stamp(doc.OpenedAtMs),
		ClosedAt:       stamp(doc.ClosedAtMs),
		ClosedPulse:    doc.ClosedPulse,
		ReceiveCount:   doc.ReceiveCount,
		TotalPhi:       doc.TotalPhi,
		TotalUSD:       usd(doc.TotalMicroPhi, quote),
		RollingRoot:    doc.RollingRoot,
		OwnerProof:     len(doc.OwnerCloseProof) > 0,
		Receipts:       NewReceipts(doc.Receipts, quote),
		Verified:       true,
	}
	if err := phiterm.VerifyDocument(doc); err != nil {
		d.Verified = false
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				d.Problems = append(d.Problems, e.Error())
			}
		} else {
			d.Problems = []string{err.Error()}
		}
	}
	return d
}
