package phiterm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// this file contains the portable artifacts of a portal: the settlement
// document sealed in an SVG, the patched anchor glyph, and receipts as JSONL.

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// wrapMetadataSVG returns a decorative seal carrying payload, verbatim, in
// its <metadata> element.
func wrapMetadataSVG(payload []byte, title string) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="1024" height="1024" viewBox="0 0 1024 1024">
  <metadata>`)
	b.WriteString(xmlEscaper.Replace(string(payload)))
	b.WriteString(`</metadata>
  <defs>
    <radialGradient id="g" cx="30%" cy="25%" r="70%">
      <stop offset="0%" stop-color="rgba(55,255,228,0.85)"/>
      <stop offset="55%" stop-color="rgba(55,255,228,0.10)"/>
      <stop offset="100%" stop-color="rgba(10,18,22,1)"/>
    </radialGradient>
  </defs>
  <rect width="1024" height="1024" fill="rgba(10,18,22,1)"/>
  <circle cx="512" cy="512" r="420" fill="url(#g)" opacity="0.9"/>
  <circle cx="512" cy="512" r="420" fill="none" stroke="rgba(55,255,228,0.35)" stroke-width="6"/>
  <text x="512" y="520" text-anchor="middle" font-size="210" font-family="system-ui, sans-serif" fill="rgba(242,255,252,0.92)" font-weight="900">Φ</text>
  <text x="512" y="610" text-anchor="middle" font-size="28" font-family="system-ui, sans-serif" fill="rgba(242,255,252,0.72)" font-weight="800" letter-spacing="2">`)
	b.WriteString(xmlEscaper.Replace(title))
	b.WriteString("</text>\n</svg>\n")
	return b.Bytes()
}

// BuildSettlementSVG seals doc in an SVG file. The JSON document is the
// authoritative content; the drawing is decoration.
func BuildSettlementSVG(doc SettlementDocument) ([]byte, error) {
	payload, err := marshalJSON(doc)
	if err != nil {
		return nil, err
	}
	id := doc.PortalID
	if len(id) > 10 {
		id = id[:10] + "…"
	}
	return wrapMetadataSVG(payload, "Φ PORTAL SETTLEMENT • "+id), nil
}

// ReadSettlementSVG recovers the settlement document sealed in svg, along
// with its exact JSON bytes.
func ReadSettlementSVG(svg []byte) (SettlementDocument, []byte, error) {
	d, err := readSVG(svg)
	if err != nil {
		return SettlementDocument{}, nil, err
	}
	raw := []byte(d.Metadata)

	var identifier struct {
		V string `json:"v"`
	}
	if err := json.Unmarshal(raw, &identifier); err != nil {
		return SettlementDocument{}, nil, fmt.Errorf("svg metadata is not a JSON document: %w", err)
	}
	if identifier.V != PortalSettlementTag {
		return SettlementDocument{}, nil, fmt.Errorf("svg metadata is %q, not a portal settlement", identifier.V)
	}
	var doc SettlementDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return SettlementDocument{}, nil, fmt.Errorf("invalid portal settlement: %w", err)
	}
	return doc, raw, nil
}

var (
	svgMetadata = regexp.MustCompile(`(?s)<metadata>.*?</metadata>`)
	svgOpenTag  = regexp.MustCompile(`<svg[^>]*>`)
)

// PatchAnchorSVG replaces the <metadata> of the anchor glyph with meta, or
// injects one right after the <svg> tag.
func PatchAnchorSVG(anchor []byte, meta PortalMeta) ([]byte, error) {
	data, err := marshalJSON(meta)
	if err != nil {
		return nil, err
	}
	element := []byte("<metadata>" + xmlEscaper.Replace(string(data)) + "</metadata>")

	if loc := svgMetadata.FindIndex(anchor); loc != nil {
		return bytes.Join([][]byte{anchor[:loc[0]], element, anchor[loc[1]:]}, nil), nil
	}
	loc := svgOpenTag.FindIndex(anchor)
	if loc == nil {
		return nil, errors.New("anchor is not an svg document")
	}
	return bytes.Join([][]byte{anchor[:loc[1]], []byte("\n  "), element, []byte("\n"), anchor[loc[1]:]}, nil), nil
}

// PatchAnchorJSON returns the anchor JSON object with meta set as its
// portalMeta property. Other properties keep their order.
func PatchAnchorJSON(anchor []byte, meta PortalMeta) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(anchor))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, errors.New("anchor is not a JSON object")
	}

	var b bytes.Buffer
	b.WriteByte('{')
	put := func(key string, value any) error {
		k, _ := marshalJSON(key)
		v, err := marshalJSON(value)
		if err != nil {
			return fmt.Errorf("cannot write %q: %w", key, err)
		}
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
		return nil
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid anchor JSON: %w", err)
		}
		key := tok.(string) // object keys are always strings
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid anchor JSON: %w", err)
		}
		if key == "portalMeta" {
			continue
		}
		if err := put(key, value); err != nil {
			return nil, err
		}
	}
	if err := put("portalMeta", meta); err != nil {
		return nil, err
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// ExportReceipts writes rows to w as JSONL, one receipt per line.
func ExportReceipts(w io.Writer, rows []ReceiptRow) error {
	for _, row := range rows {
		data, err := marshalJSON(row)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return err
		}
	}
	return nil
}

// ImportReceipts reads receipts written by ExportReceipts.
func ImportReceipts(r io.Reader) ([]ReceiptRow, error) {
	var rows []ReceiptRow
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var row ReceiptRow
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("cannot parse receipt line %q: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}
