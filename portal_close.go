package phiterm

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ClosePortal freezes the OPEN portal m and mints its settlement document
// from the stored receipts. Owner presence must have been verified by the
// caller; proof is its optional evidence.
func ClosePortal(m PortalMeta, receipts []ReceiptRow, proof json.RawMessage, now time.Time) (PortalMeta, SettlementDocument, error) {
	if m.Status != PortalOpen {
		return PortalMeta{}, SettlementDocument{}, fmt.Errorf("%w: cannot close an %s portal", ErrIllegalTransition, m.Status)
	}
	m = m.next()
	m.Status = PortalClosed
	m.ClosedAtMs = now.UnixMilli()
	m.ClosedPulse = PulseAt(now)

	return m, NewSettlementDocument(m, receipts, proof), nil
}

// NewSettlementDocument snapshots a closed session and its receipts, in
// acceptance order.
func NewSettlementDocument(m PortalMeta, receipts []ReceiptRow, proof json.RawMessage) SettlementDocument {
	rows := slices.Clone(receipts)
	slices.SortFunc(rows, bySeq)
	if rows == nil {
		rows = []ReceiptRow{}
	}
	return SettlementDocument{
		V:               PortalSettlementTag,
		Canon:           CanonJCS,
		HashAlg:         HashSHA256,
		PortalID:        m.PortalID,
		MerchantPhiKey:  m.MerchantPhiKey,
		MerchantLabel:   m.MerchantLabel,
		OpenedAtMs:      m.OpenedAtMs,
		ClosedAtMs:      m.ClosedAtMs,
		OpenedPulse:     m.OpenedPulse,
		ClosedPulse:     m.ClosedPulse,
		ReceiveCount:    m.ReceiveCount,
		TotalMicroPhi:   m.TotalMicroPhi,
		TotalPhi:        m.TotalPhi,
		RollingRoot:     m.RollingRoot,
		Receipts:        rows,
		OwnerCloseProof: proof,
	}
}
