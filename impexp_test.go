package phiterm

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func closedDocument(t *testing.T) SettlementDocument {
	t.Helper()
	m, rows := acceptAll(t, openMeta(t), "9", "1.5")
	m.MerchantLabel = `Café "<Φ>" & Sons`
	_, doc, err := ClosePortal(m, rows, json.RawMessage(`{"note":"<owner> & co"}`), t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSettlementSVG(t *testing.T) {
	doc := closedDocument(t)

	svg, err := BuildSettlementSVG(doc)
	if err != nil {
		t.Fatalf("BuildSettlementSVG() error: %v", err)
	}
	if !bytes.HasPrefix(svg, []byte("<?xml")) || !bytes.Contains(svg, []byte("&lt;Φ&gt;")) {
		t.Errorf("BuildSettlementSVG() did not escape the metadata:\n%s", svg)
	}

	got, raw, err := ReadSettlementSVG(svg)
	if err != nil {
		t.Fatalf("ReadSettlementSVG() error: %v", err)
	}
	want, _ := marshalJSON(doc)
	if !bytes.Equal(raw, want) {
		t.Errorf("ReadSettlementSVG() raw =\n%s\nwant\n%s", raw, want)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("ReadSettlementSVG() mismatch (-want +got):\n%s", diff)
	}
	if err := VerifyDocument(got); err != nil {
		t.Errorf("VerifyDocument() of the recovered document error: %v", err)
	}
}

func TestReadSettlementSVG_Errors(t *testing.T) {
	for _, svg := range []string{
		`<svg><metadata>{"v":"PHI-PORTAL-1"}</metadata></svg>`,
		`<svg><metadata>nope</metadata></svg>`,
		`not svg`,
	} {
		if _, _, err := ReadSettlementSVG([]byte(svg)); err == nil {
			t.Errorf("ReadSettlementSVG(%q) succeeded", svg)
		}
	}
}

func TestPatchAnchorSVG(t *testing.T) {
	meta := openMeta(t)
	meta.MerchantLabel = "A&B"

	tests := []struct {
		name   string
		anchor string
		keep   string
	}{
		{"replace", `<svg width="1"><metadata>{"phiKey":"old"}</metadata><circle/></svg>`, "<circle/>"},
		{"inject", `<?xml version="1.0"?><svg width="1"><circle/></svg>`, `<svg width="1">`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PatchAnchorSVG([]byte(tt.anchor), meta)
			if err != nil {
				t.Fatalf("PatchAnchorSVG() error: %v", err)
			}
			if !strings.Contains(string(got), tt.keep) || strings.Contains(string(got), "old") {
				t.Errorf("PatchAnchorSVG() =\n%s", got)
			}
			if n := strings.Count(string(got), "<metadata>"); n != 1 {
				t.Errorf("PatchAnchorSVG() has %d metadata elements", n)
			}
			d, err := readSVG(got)
			if err != nil {
				t.Fatal(err)
			}
			var back PortalMeta
			if err := json.Unmarshal([]byte(d.Metadata), &back); err != nil {
				t.Fatalf("patched metadata is not JSON: %v", err)
			}
			if diff := cmp.Diff(meta, back); diff != "" {
				t.Errorf("patched metadata mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := PatchAnchorSVG([]byte(`{"phiKey":"x"}`), meta); err == nil {
		t.Errorf("PatchAnchorSVG() of a JSON anchor succeeded")
	}
}

func TestPatchAnchorJSON(t *testing.T) {
	meta := openMeta(t)
	anchor := `{"z":1,"portalMeta":{"old":true},"a":{"b":[1,2]}}`

	got, err := PatchAnchorJSON([]byte(anchor), meta)
	if err != nil {
		t.Fatalf("PatchAnchorJSON() error: %v", err)
	}
	metaJSON, _ := marshalJSON(meta)
	want := `{"z":1,"a":{"b":[1,2]},"portalMeta":` + string(metaJSON) + `}`
	if string(got) != want {
		t.Errorf("PatchAnchorJSON() =\n%s\nwant\n%s", got, want)
	}

	for _, bad := range []string{`[1]`, `{"a":`, ``} {
		if _, err := PatchAnchorJSON([]byte(bad), meta); err == nil {
			t.Errorf("PatchAnchorJSON(%q) succeeded", bad)
		}
	}
}

func TestExportImportReceipts(t *testing.T) {
	_, rows := acceptAll(t, openMeta(t), "1", "2")

	var buf bytes.Buffer
	if err := ExportReceipts(&buf, rows); err != nil {
		t.Fatalf("ExportReceipts() error: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("ExportReceipts() wrote %d lines, want 2", n)
	}
	got, err := ImportReceipts(&buf)
	if err != nil {
		t.Fatalf("ImportReceipts() error: %v", err)
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Errorf("ImportReceipts() mismatch (-want +got):\n%s", diff)
	}
}
