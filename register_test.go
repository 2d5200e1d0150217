package phiterm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRegister_MatchedScenario(t *testing.T) {
	ctx := context.Background()
	r, store := openRegister(t)

	inv, err := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "9.000000", Memo: "espresso"})
	if err != nil {
		t.Fatalf("IssueInvoice() error: %v", err)
	}
	before, _ := r.Status(ctx)

	s := mustSettle(t, inv, merchantKey, "9.000000")
	res, err := r.Accept(ctx, s)
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	if !res.Accepted || !res.Matched || !res.Receipt.MatchedInvoice {
		t.Fatalf("Accept() = %+v, want a matched acceptance", res)
	}

	after, _ := r.Status(ctx)
	if got := after.TotalMicroPhi.Sub(before.TotalMicroPhi); !got.Equal(NewMicro(9_000_000)) {
		t.Errorf("total increased by %s, want 9000000", got)
	}
	rec, err := store.Invoice(ctx, inv.InvoiceID)
	if err != nil || rec.Status != InvoiceSettled {
		t.Errorf("invoice status = %s, %v, want SETTLED", rec.Status, err)
	}
	inbox, _ := store.Settlements(ctx, 0)
	if len(inbox) != 1 {
		t.Errorf("inbox has %d settlements, want 1", len(inbox))
	}
}

func TestRegister_DuplicateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := openRegister(t)
	inv, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "9"})
	s := mustSettle(t, inv, merchantKey, "9")

	if res, err := r.Accept(ctx, s); err != nil || !res.Accepted {
		t.Fatalf("first Accept() = %+v, %v", res, err)
	}
	first, _ := r.Status(ctx)
	inbox, _ := r.Store().Settlements(ctx, 0)
	arrived := inbox[0].CreatedAtMs

	// the same settlement through another transport
	got := r.Ingest(ctx, mustJSON(t, s))
	if !got.OK || got.Accept == nil || !got.Accept.Duplicate || !errors.Is(got.Err, ErrDuplicateReceipt) {
		t.Fatalf("second Ingest() = %+v, want a duplicate", got)
	}

	second, _ := r.Status(ctx)
	if second.ReceiveCount != 1 || !second.TotalMicroPhi.Equal(first.TotalMicroPhi) || second.Version != first.Version {
		t.Errorf("duplicate changed the session: %+v", second)
	}
	inbox, _ = r.Store().Settlements(ctx, 0)
	if len(inbox) != 1 || inbox[0].CreatedAtMs != arrived {
		t.Errorf("duplicate moved the inbox entry from %d to %+v", arrived, inbox)
	}
}

func TestRegister_PolicyRejections(t *testing.T) {
	ctx := context.Background()
	r, store := openRegister(t)
	inv, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "9"})
	before, _ := r.Status(ctx)

	tests := []struct {
		name string
		s    Settlement
		want error
	}{
		{"misaddressed", mustSettle(t, inv, strangerKey, "9"), ErrMisaddressed},
		{"unknown invoice", mustSettle(t, mustInvoice(t, "9"), merchantKey, "9"), ErrUnmatchedSettlementRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Accept(ctx, tt.s)
			if err != nil {
				t.Fatalf("Accept() error: %v", err)
			}
			if res.Accepted || !errors.Is(res.Reason, tt.want) {
				t.Errorf("Accept() = %+v, want rejection %v", res, tt.want)
			}
		})
	}

	after, _ := r.Status(ctx)
	if after.Version != before.Version || after.RollingRoot != before.RollingRoot || !after.TotalMicroPhi.Equal(before.TotalMicroPhi) {
		t.Errorf("rejections changed the session: %+v", after)
	}
	// the inbox keeps everything
	inbox, _ := store.Settlements(ctx, 0)
	if len(inbox) != 2 {
		t.Errorf("inbox has %d settlements, want 2", len(inbox))
	}
	rec, _ := store.Invoice(ctx, inv.InvoiceID)
	if rec.Status != InvoiceOpen {
		t.Errorf("invoice status = %s, want OPEN", rec.Status)
	}
}

func TestRegister_DirectReceives(t *testing.T) {
	ctx := context.Background()
	r, _ := openRegister(t)
	if _, err := r.SetAllowDirectReceives(ctx, true); err != nil {
		t.Fatalf("SetAllowDirectReceives() error: %v", err)
	}
	res, err := r.Accept(ctx, mustSettle(t, mustInvoice(t, "3"), merchantKey, "3"))
	if err != nil || !res.Accepted || res.Matched {
		t.Errorf("Accept() = %+v, %v, want a direct receive", res, err)
	}
}

func TestRegister_InvalidSettlement(t *testing.T) {
	ctx := context.Background()
	r, store := openRegister(t)
	s := mustSettle(t, mustInvoice(t, "3"), merchantKey, "3")
	s.Amount.Phi = "300"
	if _, err := r.Accept(ctx, s); !errors.Is(err, ErrContentMismatch) {
		t.Errorf("Accept() of a tampered settlement error = %v, want ErrContentMismatch", err)
	}
	if inbox, _ := store.Settlements(ctx, 0); len(inbox) != 0 {
		t.Errorf("a tampered settlement reached the inbox")
	}
}

func TestRegister_IllegalTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	r := NewRegister(store, nil, nil)
	r.Now = testClock()

	// LOCKED
	if _, err := r.Open(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Open() while LOCKED error = %v", err)
	}
	if _, err := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "1"}); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("IssueInvoice() while LOCKED error = %v", err)
	}

	if _, err := r.Arm(ctx, merchantAnchor(t)); err != nil {
		t.Fatal(err)
	}
	// ARMED
	if _, err := r.Close(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Close() while ARMED error = %v, want ErrIllegalTransition", err)
	}
	if _, err := r.Accept(ctx, mustSettle(t, mustInvoice(t, "1"), merchantKey, "1")); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Accept() while ARMED error = %v", err)
	}
	if meta, _ := r.Status(ctx); meta.Status != PortalArmed || meta.Version != 1 {
		t.Errorf("failed transitions changed the session: %+v", meta)
	}

	if _, err := r.Open(ctx); err != nil {
		t.Fatal(err)
	}
	// OPEN
	if _, err := r.Arm(ctx, merchantAnchor(t)); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Arm() while OPEN error = %v", err)
	}
	if _, err := r.Document(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Document() while OPEN error = %v", err)
	}
}

func TestRegister_Presence(t *testing.T) {
	ctx := context.Background()
	var asked []Purpose
	answer := Presence{OK: false}
	var fail error
	presence := PresenceFunc(func(_ context.Context, p Purpose) (Presence, error) {
		asked = append(asked, p)
		return answer, fail
	})

	r := NewRegister(NewMemStore(), nil, presence)
	r.Now = testClock()
	if _, err := r.Arm(ctx, merchantAnchor(t)); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Open(ctx); !errors.Is(err, ErrPresenceDeclined) {
		t.Errorf("Open() declined error = %v, want ErrPresenceDeclined", err)
	}
	fail = errors.New("no biometrics")
	if _, err := r.Open(ctx); !errors.Is(err, fail) {
		t.Errorf("Open() failing error = %v, want %v", err, fail)
	}
	if meta, _ := r.Status(ctx); meta.Status != PortalArmed {
		t.Errorf("status after failed Open() = %s, want ARMED", meta.Status)
	}

	answer, fail = Presence{OK: true, Proof: json.RawMessage(`"sig"`)}, nil
	if _, err := r.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	doc, err := r.Close(ctx)
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if string(doc.OwnerCloseProof) != `"sig"` {
		t.Errorf("OwnerCloseProof = %s, want the presence proof", doc.OwnerCloseProof)
	}
	want := fmt.Sprint([]Purpose{PurposeOpen, PurposeOpen, PurposeOpen, PurposeClose})
	if got := fmt.Sprint(asked); got != want {
		t.Errorf("presence asked for %s, want %s", got, want)
	}
}

func TestRegister_CloseAndDocument(t *testing.T) {
	ctx := context.Background()
	r, _ := openRegister(t)
	for _, a := range []string{"9", "0.5", "12.000001"} {
		inv, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: a})
		if res, err := r.Accept(ctx, mustSettle(t, inv, merchantKey, a)); err != nil || !res.Accepted {
			t.Fatalf("Accept(%s) = %+v, %v", a, res, err)
		}
	}

	doc, err := r.Close(ctx)
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if doc.ReceiveCount != 3 || doc.TotalPhi != "21.500001" {
		t.Errorf("document totals %d / %s", doc.ReceiveCount, doc.TotalPhi)
	}
	if err := VerifyDocument(doc); err != nil {
		t.Errorf("VerifyDocument() error: %v", err)
	}

	again, err := r.Document(ctx)
	if err != nil {
		t.Fatalf("Document() error: %v", err)
	}
	if again.RollingRoot != doc.RollingRoot || again.ClosedAtMs != doc.ClosedAtMs || len(again.Receipts) != 3 {
		t.Errorf("Document() does not rebuild the closing document")
	}

	// re-arming a closed portal wipes the device
	meta, err := r.Arm(ctx, merchantAnchor(t))
	if err != nil {
		t.Fatalf("Arm() after Close() error: %v", err)
	}
	if meta.ReceiveCount != 0 || meta.Version != 1 {
		t.Errorf("Arm() after Close() = %+v", meta)
	}
	if rows, _ := r.Store().Receipts(ctx); len(rows) != 0 {
		t.Errorf("Arm() kept %d receipts", len(rows))
	}
}

func TestRegister_RecoversLostSessionWrite(t *testing.T) {
	ctx := context.Background()
	r, store := openRegister(t)
	inv, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "4"})
	s := mustSettle(t, inv, merchantKey, "4")

	// simulate a crash between the receipt and the session writes
	meta, _ := r.Status(ctx)
	res, err := AppendSettlement(*meta, s, []Invoice{inv}, r.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.PutReceipt(ctx, *res.Receipt); err != nil {
		t.Fatal(err)
	}

	// the replay of the same settlement is a duplicate, and the session heals
	again, err := r.Accept(ctx, s)
	if err != nil || !again.Duplicate {
		t.Fatalf("Accept() = %+v, %v, want a duplicate", again, err)
	}
	healed, _ := r.Status(ctx)
	if healed.ReceiveCount != 1 || healed.RollingRoot != res.Meta.RollingRoot || !healed.TotalMicroPhi.Equal(NewMicro(4_000_000)) {
		t.Errorf("session not recovered: %+v", healed)
	}
	if rec, _ := store.Invoice(ctx, inv.InvoiceID); rec.Status != InvoiceSettled {
		t.Errorf("recovered invoice status = %s, want SETTLED", rec.Status)
	}
}

func TestRegister_ConcurrentAccept(t *testing.T) {
	ctx := context.Background()
	r, _ := openRegister(t)

	var settlements []Settlement
	for i := range 10 {
		inv, err := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: fmt.Sprint(i + 1)})
		if err != nil {
			t.Fatal(err)
		}
		settlements = append(settlements, mustSettle(t, inv, merchantKey, inv.Amount.Phi))
	}

	// every settlement arrives through three transports at once
	var wg sync.WaitGroup
	for _, s := range settlements {
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := r.Accept(ctx, s); err != nil {
					t.Errorf("Accept() error: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	meta, _ := r.Status(ctx)
	if meta.ReceiveCount != 10 || !meta.TotalMicroPhi.Equal(NewMicro(55_000_000)) {
		t.Errorf("after concurrent accepts: %d receipts, total %s, want 10 and 55000000", meta.ReceiveCount, meta.TotalMicroPhi)
	}
	rows, _ := r.Store().Receipts(ctx)
	if root, _ := Fold(rows); root != meta.RollingRoot {
		t.Errorf("replaying receipts by seq gives %s, want %s", root, meta.RollingRoot)
	}
}

func TestRegister_Invoices(t *testing.T) {
	ctx := context.Background()
	r, store := openRegister(t)

	a, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "1"})
	if err := r.CancelInvoice(ctx, a.InvoiceID); err != nil {
		t.Fatalf("CancelInvoice() error: %v", err)
	}
	if err := r.CancelInvoice(ctx, a.InvoiceID); !errors.Is(err, ErrInvoiceNotOpen) {
		t.Errorf("CancelInvoice() twice error = %v, want ErrInvoiceNotOpen", err)
	}
	if err := r.CancelInvoice(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CancelInvoice(unknown) error = %v, want ErrNotFound", err)
	}
	// a canceled invoice no longer matches
	res, _ := r.Accept(ctx, mustSettle(t, a, merchantKey, "1"))
	if res.Accepted {
		t.Errorf("Accept() matched a canceled invoice")
	}

	pulse := PulseAt(r.Now())
	b, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "2", ExpiresPulse: pulse + 2})
	c, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "3", ExpiresPulse: pulse + 1_000_000})

	r.Now = func() time.Time { return PulseTime(pulse + 3) }
	expired, err := r.ExpireInvoices(ctx)
	if err != nil {
		t.Fatalf("ExpireInvoices() error: %v", err)
	}
	if len(expired) != 1 || expired[0] != b.InvoiceID {
		t.Errorf("ExpireInvoices() = %v, want [%s]", expired, b.InvoiceID)
	}
	for id, want := range map[string]InvoiceStatus{a.InvoiceID: InvoiceCanceled, b.InvoiceID: InvoiceExpired, c.InvoiceID: InvoiceOpen} {
		if rec, _ := store.Invoice(ctx, id); rec.Status != want {
			t.Errorf("invoice %.8s status = %s, want %s", id, rec.Status, want)
		}
	}
}

func TestRegister_Ingest(t *testing.T) {
	ctx := context.Background()
	r, store := openRegister(t)

	// an invoice issued elsewhere, shared by URL
	inv := mustInvoice(t, "7")
	link, _ := EncodeURL("https://pay.example/", inv)
	got := r.Ingest(ctx, []byte(link))
	if !got.OK || got.Kind != IngestInvoice || got.Note != "Invoice imported." {
		t.Fatalf("Ingest(invoice) = %+v", got)
	}
	if got := r.Ingest(ctx, []byte(link)); got.Note != "Invoice already known." {
		t.Errorf("Ingest(invoice) twice = %+v", got)
	}

	s := mustSettle(t, inv, merchantKey, "7")
	got = r.Ingest(ctx, []byte(b64urlEncode(mustJSON(t, s))))
	if !got.OK || got.Kind != IngestSettlement || got.MatchedInvoiceID != inv.InvoiceID {
		t.Errorf("Ingest(settlement) = %+v", got)
	}
	if rec, _ := store.Invoice(ctx, inv.InvoiceID); rec.Status != InvoiceSettled {
		t.Errorf("ingested invoice status = %s, want SETTLED", rec.Status)
	}

	got = r.Ingest(ctx, []byte("garbage"))
	if got.OK || got.Kind != IngestError || !errors.Is(got.Err, ErrUnknownPayload) {
		t.Errorf("Ingest(garbage) = %+v", got)
	}
	got = r.Ingest(ctx, mustJSON(t, mustSettle(t, mustInvoice(t, "1"), merchantKey, "1")))
	if got.OK || !errors.Is(got.Err, ErrUnmatchedSettlementRejected) {
		t.Errorf("Ingest(unmatched) = %+v", got)
	}
}

func TestRegister_PatchAnchor(t *testing.T) {
	ctx := context.Background()
	r, _ := openRegister(t)

	patched, err := r.PatchAnchor(ctx, merchantAnchor(t))
	if err != nil {
		t.Fatalf("PatchAnchor() error: %v", err)
	}
	var glyph struct {
		PhiKey     string     `json:"phiKey"`
		PortalMeta PortalMeta `json:"portalMeta"`
	}
	if err := json.Unmarshal(patched, &glyph); err != nil {
		t.Fatal(err)
	}
	if glyph.PhiKey != merchantKey || glyph.PortalMeta.Status != PortalOpen {
		t.Errorf("PatchAnchor() = %s", patched)
	}

	// the patched glyph still arms the same merchant
	id, err := MetadataExtractor{}.Extract(ctx, patched, AnchorJSON)
	if err != nil || id.PhiKey != merchantKey {
		t.Errorf("Extract(patched) = %+v, %v", id, err)
	}
}

func TestRegister_DeclinedCloseWritesNothing(t *testing.T) {
	ctx := context.Background()
	allowClose := false
	presence := PresenceFunc(func(_ context.Context, p Purpose) (Presence, error) {
		return Presence{OK: p != PurposeClose || allowClose}, nil
	})
	store := NewMemStore()
	r := NewRegister(store, nil, presence)
	r.Now = testClock()
	if _, err := r.Arm(ctx, merchantAnchor(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open(ctx); err != nil {
		t.Fatal(err)
	}

	// a receipt left behind by an interrupted Accept
	inv, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "3"})
	meta, _ := r.Status(ctx)
	res, err := AppendSettlement(*meta, mustSettle(t, inv, merchantKey, "3"), []Invoice{inv}, r.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.PutReceipt(ctx, *res.Receipt); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Close(ctx); !errors.Is(err, ErrPresenceDeclined) {
		t.Fatalf("Close() declined error = %v, want ErrPresenceDeclined", err)
	}
	if after, _ := r.Status(ctx); after.Version != meta.Version || after.ReceiveCount != 0 {
		t.Errorf("declined Close() wrote the session: version %d -> %d", meta.Version, after.Version)
	}

	allowClose = true
	doc, err := r.Close(ctx)
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if doc.ReceiveCount != 1 {
		t.Errorf("Close() document has %d receipts, want the recovered one", doc.ReceiveCount)
	}
	if err := VerifyDocument(doc); err != nil {
		t.Errorf("VerifyDocument() error: %v", err)
	}
}

// raceStore holds the first receipt write of a writer until every writer has
// reached it, so that they all compute their receipt from the same session.
type raceStore struct {
	Store
	once  sync.Once
	ready *sync.WaitGroup
}

func (s *raceStore) PutReceipt(ctx context.Context, row ReceiptRow) error {
	s.once.Do(func() {
		s.ready.Done()
		s.ready.Wait()
	})
	return s.Store.PutReceipt(ctx, row)
}

func TestRegister_TwoWritersOneFolder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// two stores on one folder stand for two phiterm processes
	var ready sync.WaitGroup
	ready.Add(2)
	var registers []*Register
	for range 2 {
		fs, err := OpenFileStore(dir)
		if err != nil {
			t.Fatal(err)
		}
		r := NewRegister(&raceStore{Store: fs, ready: &ready}, nil, nil)
		r.Now = testClock()
		registers = append(registers, r)
	}
	if _, err := registers[0].Arm(ctx, merchantAnchor(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := registers[0].Open(ctx); err != nil {
		t.Fatal(err)
	}
	var settlements []Settlement
	for _, amount := range []string{"1", "2"} {
		inv, err := registers[0].IssueInvoice(ctx, InvoiceDraft{AmountPhi: amount})
		if err != nil {
			t.Fatal(err)
		}
		settlements = append(settlements, mustSettle(t, inv, merchantKey, amount))
	}

	results := make([]AcceptResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, r := range registers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = r.Accept(ctx, settlements[i])
		}()
	}
	wg.Wait()
	for i := range registers {
		if errs[i] != nil || !results[i].Accepted {
			t.Errorf("writer %d: Accept() = %+v, %v, want accepted", i, results[i], errs[i])
		}
	}

	// a retry by the payer stays a duplicate of a counted receipt
	if res, err := registers[1].Accept(ctx, settlements[1]); err != nil || !res.Duplicate {
		t.Errorf("retried Accept() = %+v, %v, want a duplicate", res, err)
	}

	meta, _ := registers[0].Status(ctx)
	if meta.ReceiveCount != 2 || !meta.TotalMicroPhi.Equal(NewMicro(3_000_000)) {
		t.Errorf("session has %d receipts for %s µΦ, want 2 for 3000000", meta.ReceiveCount, meta.TotalMicroPhi)
	}
	rows, _ := registers[0].Store().Receipts(ctx)
	for i, row := range rows {
		if row.Seq != int64(i+1) {
			t.Errorf("receipt %d has seq %d", i, row.Seq)
		}
	}
	doc, err := registers[1].Close(ctx)
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := VerifyDocument(doc); err != nil {
		t.Errorf("VerifyDocument() error: %v", err)
	}
}

func TestRegister_LedgerConflict(t *testing.T) {
	ctx := context.Background()
	store, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := NewRegister(store, nil, nil)
	r.Now = testClock()
	if _, err := r.Arm(ctx, merchantAnchor(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SetAllowDirectReceives(ctx, true); err != nil {
		t.Fatal(err)
	}
	inv, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "1"})
	if res, err := r.Accept(ctx, mustSettle(t, inv, merchantKey, "1")); err != nil || !res.Accepted {
		t.Fatalf("Accept() = %+v, %v", res, err)
	}

	// a second holder of seq 1, as written by an older build
	meta, _ := r.Status(ctx)
	meta.ReceiveCount = 0
	res, err := AppendSettlement(*meta, mustSettle(t, mustInvoice(t, "2"), merchantKey, "2"), nil, r.Now())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(filepath.Join(store.Dir(), "receipts.jsonl"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Write(append(mustJSON(t, res.Receipt), '\n'))
	f.Close()

	next, _ := r.IssueInvoice(ctx, InvoiceDraft{AmountPhi: "3"})
	if _, err := r.Accept(ctx, mustSettle(t, next, merchantKey, "3")); !errors.Is(err, ErrLedgerConflict) {
		t.Errorf("Accept() over conflicting receipts error = %v, want ErrLedgerConflict", err)
	}
	if _, err := r.Close(ctx); !errors.Is(err, ErrLedgerConflict) {
		t.Errorf("Close() over conflicting receipts error = %v, want ErrLedgerConflict", err)
	}
}
