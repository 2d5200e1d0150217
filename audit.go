package phiterm

import (
	"errors"
	"fmt"
)

// ErrAuditMismatch tags every discrepancy found by VerifyDocument.
var ErrAuditMismatch = errors.New("audit mismatch")

// Fold replays the rolling root and the total over receipts, in the given
// order, from the seed of an empty portal.
func Fold(receipts []ReceiptRow) (root string, total Micro) {
	root, total = RootSeed(), NewMicro(0)
	for _, row := range receipts {
		root = RollRoot(root, row.SettlementID, row.SettlementHash)
		total = total.Add(row.AmountMicroPhi)
	}
	return root, total
}

// VerifyDocument audits a settlement document independently of any store:
// every receipt must hash its raw settlement, be addressed to the merchant and
// carry its amount; seq must count 1, 2, 3…; and folding the receipts must
// reproduce the rolling root, the total and the receive count.
//
// It returns every discrepancy, joined.
func VerifyDocument(doc SettlementDocument) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrAuditMismatch}, args...)...))
	}

	if doc.V != PortalSettlementTag {
		fail("unexpected document tag %q", doc.V)
	}

	seen := make(map[string]bool)
	for i, row := range doc.Receipts {
		if row.Seq != int64(i)+1 {
			fail("receipt %d has seq %d", i+1, row.Seq)
		}
		if seen[row.SettlementID] {
			fail("receipt %d: settlement %.10s recorded twice", i+1, row.SettlementID)
		}
		seen[row.SettlementID] = true

		if err := row.Raw.Verify(); err != nil {
			fail("receipt %d: %v", i+1, err)
		}
		if row.Raw.SettlementID != row.SettlementID {
			fail("receipt %d: settlement id %.10s does not match raw settlement %.10s", i+1, row.SettlementID, row.Raw.SettlementID)
		}
		if h, err := row.Raw.Hash(); err != nil || h != row.SettlementHash {
			fail("receipt %d: settlement hash %.10s does not hash the raw settlement", i+1, row.SettlementHash)
		}
		if row.ToPhiKey != doc.MerchantPhiKey || row.Raw.ToPhiKey != doc.MerchantPhiKey {
			fail("receipt %d: not addressed to the merchant", i+1)
		}
		if !row.AmountMicroPhi.Equal(row.Raw.Micro()) || row.AmountPhi != row.Raw.Amount.Phi {
			fail("receipt %d: amount %s does not match the raw settlement %s", i+1, row.AmountPhi, row.Raw.Amount.Phi)
		}
	}

	root, total := Fold(doc.Receipts)
	if root != doc.RollingRoot {
		fail("rolling root %.10s, replay gives %.10s", doc.RollingRoot, root)
	}
	if !total.Equal(doc.TotalMicroPhi) {
		fail("total %s µΦ, receipts sum to %s µΦ", doc.TotalMicroPhi, total)
	}
	if doc.TotalPhi != MicroToPhi(doc.TotalMicroPhi) {
		fail("display total %q does not match %s µΦ", doc.TotalPhi, doc.TotalMicroPhi)
	}
	if doc.ReceiveCount != len(doc.Receipts) {
		fail("receive count %d for %d receipts", doc.ReceiveCount, len(doc.Receipts))
	}
	return errors.Join(errs...)
}
