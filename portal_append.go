package phiterm

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// AcceptResult is the outcome of offering a settlement to a portal.
//
// Policy rejections are not errors: Accepted is false and Reason holds one
// of ErrMisaddressed, ErrDuplicateReceipt or ErrUnmatchedSettlementRejected.
type AcceptResult struct {
	Accepted  bool
	Matched   bool
	Duplicate bool
	InvoiceID string // the matched invoice, if any

	Receipt *ReceiptRow
	Meta    PortalMeta // the session after the call

	Reason error
	Note   string
}

func rejected(m PortalMeta, reason error, note string) AcceptResult {
	return AcceptResult{Meta: m, Reason: reason, Note: note}
}

func bySeq(a, b ReceiptRow) int { return cmp.Compare(a.Seq, b.Seq) }

// AppendSettlement folds s into the OPEN portal m.
//
// open lists the invoices s may pay. Duplicate detection is left to the
// caller, who knows the stored receipts.
func AppendSettlement(m PortalMeta, s Settlement, open []Invoice, now time.Time) (AcceptResult, error) {
	if m.Status != PortalOpen {
		return AcceptResult{}, fmt.Errorf("%w: portal is %s, open the register to accept receipts", ErrIllegalTransition, m.Status)
	}
	if s.ToPhiKey != m.MerchantPhiKey {
		return rejected(m, ErrMisaddressed, "Settlement not addressed to this merchant."), nil
	}

	i := slices.IndexFunc(open, func(inv Invoice) bool { return MatchesInvoice(s, inv) })
	matched := i >= 0
	if !matched && !m.AllowDirectReceives {
		return rejected(m, ErrUnmatchedSettlementRejected, "Direct receives disabled (no matching invoice)."), nil
	}

	settlementHash, err := s.Hash()
	if err != nil {
		return AcceptResult{}, err
	}
	amount := s.Micro()

	row := ReceiptRow{
		V:              ReceiptRowTag,
		SettlementID:   s.SettlementID,
		SettlementHash: settlementHash,
		Seq:            int64(m.ReceiveCount) + 1,
		ReceivedAtMs:   now.UnixMilli(),
		InvoiceID:      s.InvoiceID,
		MatchedInvoice: matched,
		AmountPhi:      s.Amount.Phi,
		AmountMicroPhi: amount,
		FromPhiKey:     s.FromPhiKey,
		ToPhiKey:       s.ToPhiKey,
		Raw:            s,
	}

	res := AcceptResult{
		Accepted: true,
		Matched:  matched,
		Receipt:  &row,
		Meta:     applyReceipt(m.next(), row),
		Note:     "Accepted (direct receive).",
	}
	if matched {
		res.InvoiceID = open[i].InvoiceID
		res.Note = "Accepted (invoice matched)."
	}
	return res, nil
}

// applyReceipt credits row to m without bumping the version.
func applyReceipt(m PortalMeta, row ReceiptRow) PortalMeta {
	m.ReceiveCount++
	m.TotalMicroPhi = m.TotalMicroPhi.Add(row.AmountMicroPhi)
	m.TotalPhi = MicroToPhi(m.TotalMicroPhi)
	m.RollingRoot = RollRoot(m.RollingRoot, row.SettlementID, row.SettlementHash)
	m.LastSettlementID = row.SettlementID
	return m
}

// ReplayReceipts credits m with the receipts it has not seen yet, that is
// rows stored with a seq beyond m.ReceiveCount. It repairs a session whose
// write was lost after its receipt had been stored.
//
// It returns the rows it applied. Replay stops at the first gap in seq.
func ReplayReceipts(m PortalMeta, receipts []ReceiptRow) (PortalMeta, []ReceiptRow) {
	rows := slices.Clone(receipts)
	slices.SortFunc(rows, bySeq)

	var applied []ReceiptRow
	for _, row := range rows {
		if row.Seq <= int64(m.ReceiveCount) {
			continue
		}
		if row.Seq != int64(m.ReceiveCount)+1 {
			break
		}
		m = applyReceipt(m, row)
		applied = append(applied, row)
	}
	if len(applied) > 0 {
		m = m.next()
	}
	return m, applied
}
