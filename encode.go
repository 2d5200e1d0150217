package phiterm

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
)

// ErrUnknownPayload is returned when no protocol message can be decoded.
var ErrUnknownPayload = errors.New("unrecognized payload")

// Payload is a decoded protocol message: exactly one field is set.
type Payload struct {
	Invoice    *Invoice
	Settlement *Settlement
}

// Kind returns "invoice" or "settlement".
func (p Payload) Kind() string {
	switch {
	case p.Invoice != nil:
		return "invoice"
	case p.Settlement != nil:
		return "settlement"
	}
	return ""
}

var bareB64url = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)

// DecodePayload recovers a protocol message from any wire encoding: a URL
// with an r parameter (query or fragment), raw JSON, bare base64url JSON or
// an SVG carrying the message in its metadata or data-payload attribute.
func DecodePayload(data []byte) (Payload, error) {
	text := strings.TrimSpace(string(data))

	if strings.HasPrefix(text, "<") {
		return decodeSVGPayload([]byte(text))
	}

	if r, ok := rParam(text); ok {
		b, err := b64urlDecode(r)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: r parameter is not base64url: %w", ErrUnknownPayload, err)
		}
		return decodeMessage(b)
	}

	if strings.HasPrefix(text, "{") {
		return decodeMessage([]byte(text))
	}

	if len(text) > 32 && bareB64url.MatchString(text) {
		if b, err := b64urlDecode(text); err == nil {
			return decodeMessage(b)
		}
	}
	return Payload{}, ErrUnknownPayload
}

// rParam extracts the r parameter of an absolute URL, looking in the
// fragment when the query has none.
func rParam(text string) (string, bool) {
	u, err := url.Parse(text)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	if r := u.Query().Get("r"); r != "" {
		return r, true
	}
	frag, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return "", false
	}
	r := frag.Get("r")
	return r, r != ""
}

// decodeMessage dispatches a JSON message on its v tag.
func decodeMessage(data []byte) (Payload, error) {
	var identifier struct {
		V string `json:"v"`
	}
	if err := json.Unmarshal(data, &identifier); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrUnknownPayload, err)
	}

	switch identifier.V {
	case InvoiceTag:
		var inv Invoice
		if err := json.Unmarshal(data, &inv); err != nil {
			return Payload{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		return Payload{Invoice: &inv}, nil
	case SettlementTag:
		var s Settlement
		if err := json.Unmarshal(data, &s); err != nil {
			return Payload{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		return Payload{Settlement: &s}, nil
	}
	return Payload{}, fmt.Errorf("%w: unknown tag %q", ErrUnknownPayload, identifier.V)
}

func decodeSVGPayload(svg []byte) (Payload, error) {
	doc, err := readSVG(svg)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrUnknownPayload, err)
	}
	for _, candidate := range []string{doc.Metadata, doc.DataPayload} {
		if candidate == "" {
			continue
		}
		if p, err := decodeMessage([]byte(candidate)); err == nil {
			return p, nil
		}
	}
	return Payload{}, fmt.Errorf("%w: no protocol message in svg", ErrUnknownPayload)
}

// EncodeURL returns base with the message embedded as its r parameter.
func EncodeURL(base string, msg any) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	data, err := marshalJSON(msg)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("r", b64urlEncode(data))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// EncodeJSON returns msg as the JSON carried by every wire encoding.
func EncodeJSON(msg any) ([]byte, error) { return marshalJSON(msg) }

// marshalJSON is json.Marshal without HTML escaping, so that payloads read
// the same in every encoding.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// svgDoc holds the payload candidates of an SVG document.
type svgDoc struct {
	Metadata    string // text of the first <metadata> element
	DataPayload string // data-payload attribute of the root <svg>
}

// readSVG scans an SVG document for embedded payloads.
func readSVG(data []byte) (svgDoc, error) {
	var doc svgDoc
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity

	seenSVG, seenMeta := false, false
	depth := 0 // nesting inside <metadata>
	var meta strings.Builder
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return doc, fmt.Errorf("invalid svg: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth > 0 {
				depth++
				continue
			}
			switch {
			case t.Name.Local == "svg" && !seenSVG:
				seenSVG = true
				for _, a := range t.Attr {
					if a.Name.Local == "data-payload" {
						doc.DataPayload = strings.TrimSpace(a.Value)
					}
				}
			case t.Name.Local == "metadata" && !seenMeta:
				seenMeta = true
				depth = 1
			}
		case xml.EndElement:
			if depth > 0 {
				depth--
			}
		case xml.CharData:
			if depth == 1 {
				meta.Write(t)
			}
		}
	}
	if !seenSVG {
		return doc, errors.New("invalid svg: no <svg> element")
	}
	doc.Metadata = strings.TrimSpace(meta.String())
	return doc, nil
}
