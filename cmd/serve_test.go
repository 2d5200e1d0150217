package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/etnz/phiterm"
)

const (
	merchantKey = "phiKEYmerchant0001"
	payerKey    = "phiKEYpayer0000001"
)

// newTestRegister returns an armed register over a memory store, and an
// invoice to pay once it is open.
func newTestRegister(t *testing.T, open bool) (*phiterm.Register, phiterm.Invoice) {
	t.Helper()
	ctx := context.Background()
	r := phiterm.NewRegister(phiterm.NewMemStore(), nil, nil)
	anchor, _ := json.Marshal(map[string]string{"phiKey": merchantKey})
	if _, err := r.Arm(ctx, phiterm.Anchor{Name: "shop.json", Kind: phiterm.AnchorJSON, Text: anchor}); err != nil {
		t.Fatal(err)
	}
	if !open {
		return r, phiterm.Invoice{}
	}
	if _, err := r.Open(ctx); err != nil {
		t.Fatal(err)
	}
	inv, err := r.IssueInvoice(ctx, phiterm.InvoiceDraft{AmountPhi: "2.5", Memo: "coffee"})
	if err != nil {
		t.Fatal(err)
	}
	return r, inv
}

func settle(t *testing.T, inv phiterm.Invoice, to string) phiterm.Settlement {
	t.Helper()
	s, err := phiterm.CreateSettlement(inv, phiterm.SettlementRequest{FromPhiKey: payerKey, ToPhiKey: to, AmountPhi: "2.5"})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, ingestResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	var out ingestResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestRouter_Ingest(t *testing.T) {
	r, inv := newTestRegister(t, true)
	h := newRouter(r)

	body, err := phiterm.EncodeJSON(settle(t, inv, merchantKey))
	if err != nil {
		t.Fatal(err)
	}
	rec, out := do(t, h, http.MethodPost, "/ingest", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ingest = %d %s, want 200", rec.Code, rec.Body)
	}
	if !out.OK || out.Kind != phiterm.IngestSettlement || out.MatchedInvoiceID != inv.InvoiceID {
		t.Errorf("POST /ingest = %+v, want a settlement matching %s", out, inv.InvoiceID)
	}

	// the same settlement again is a replay, not an error.
	rec, out = do(t, h, http.MethodPost, "/ingest", string(body))
	if rec.Code != http.StatusOK || !out.Duplicate {
		t.Errorf("replayed POST /ingest = %d %+v, want a 200 duplicate", rec.Code, out)
	}
}

func TestRouter_IngestLink(t *testing.T) {
	r, inv := newTestRegister(t, true)
	h := newRouter(r)

	link, err := phiterm.EncodeURL("https://phi.network/portal", settle(t, inv, merchantKey))
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatal(err)
	}
	target := "/ingest?r=" + url.QueryEscape(u.Query().Get("r"))
	if rec, out := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusOK || !out.OK {
		t.Errorf("GET %s = %d %+v, want 200", target, rec.Code, out)
	}

	if rec, _ := do(t, h, http.MethodGet, "/ingest", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /ingest without r = %d, want 400", rec.Code)
	}
}

func TestRouter_IngestStatusCodes(t *testing.T) {
	open, inv := newTestRegister(t, true)
	misaddressed, err := phiterm.EncodeJSON(settle(t, inv, "phiKEYsomeoneelse01"))
	if err != nil {
		t.Fatal(err)
	}
	valid, err := phiterm.EncodeJSON(settle(t, inv, merchantKey))
	if err != nil {
		t.Fatal(err)
	}
	armed, _ := newTestRegister(t, false)

	tests := []struct {
		name     string
		register *phiterm.Register
		body     string
		want     int
	}{
		{"garbage", open, "not a payload", http.StatusBadRequest},
		{"misaddressed", open, string(misaddressed), http.StatusUnprocessableEntity},
		{"portal not open", armed, string(valid), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, newRouter(tt.register), http.MethodPost, "/ingest", tt.body)
			if rec.Code != tt.want {
				t.Errorf("POST /ingest = %d, want %d", rec.Code, tt.want)
			}
			if out.OK || out.Error == "" {
				t.Errorf("POST /ingest = %+v, want a failure with an error", out)
			}
		})
	}
}

func TestRouter_Portal(t *testing.T) {
	h := newRouter(phiterm.NewRegister(phiterm.NewMemStore(), nil, nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portal", nil))
	if !strings.Contains(rec.Body.String(), `"LOCKED"`) {
		t.Errorf("GET /portal on a locked device = %s, want LOCKED", rec.Body)
	}

	r, _ := newTestRegister(t, true)
	rec = httptest.NewRecorder()
	newRouter(r).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portal", nil))
	var meta phiterm.PortalMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("GET /portal = %s: %v", rec.Body, err)
	}
	if meta.Status != phiterm.PortalOpen || meta.MerchantPhiKey != merchantKey {
		t.Errorf("GET /portal = %s %s, want OPEN %s", meta.Status, meta.MerchantPhiKey, merchantKey)
	}
}

func TestRouter_ReceiptsAndDocument(t *testing.T) {
	ctx := context.Background()
	r, inv := newTestRegister(t, true)
	h := newRouter(r)
	if res, err := r.Accept(ctx, settle(t, inv, merchantKey)); err != nil || !res.Accepted {
		t.Fatalf("Accept() = %+v, %v", res, err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/receipts", nil))
	rows, err := phiterm.ImportReceipts(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Seq != 1 {
		t.Errorf("GET /receipts = %+v, want receipt #1", rows)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/document", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("GET /document on an OPEN portal = %d, want 409", rec.Code)
	}

	if _, err := r.Close(ctx); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/document", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /document = %d %s, want 200", rec.Code, rec.Body)
	}
	doc, _, err := phiterm.ReadSettlementSVG(rec.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if err := phiterm.VerifyDocument(doc); err != nil {
		t.Errorf("served document does not verify: %v", err)
	}
}
