package phiterm

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// AnchorKind is the file format of a merchant glyph.
type AnchorKind string

const (
	AnchorSVG  AnchorKind = "svg"
	AnchorJSON AnchorKind = "json"
)

// KindOf guesses the anchor kind from a file name.
func KindOf(name string) AnchorKind {
	if strings.EqualFold(filepath.Ext(name), ".svg") {
		return AnchorSVG
	}
	return AnchorJSON
}

// Identity is the merchant identity found in an anchor glyph.
type Identity struct {
	PhiKey string
	Label  string
}

// Extractor finds the merchant identity in an anchor file.
type Extractor interface {
	Extract(ctx context.Context, data []byte, kind AnchorKind) (Identity, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, data []byte, kind AnchorKind) (Identity, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte, kind AnchorKind) (Identity, error) {
	return f(ctx, data, kind)
}

var (
	DefaultKeyPaths   = []string{"$.phiKey", "$.userPhiKey", "$.merchantPhiKey", "$.proofCapsule.phiKey"}
	DefaultLabelPaths = []string{"$.merchantLabel", "$.label", "$.name"}
)

// minKeyLength rejects placeholder keys found in glyph metadata.
const minKeyLength = 11

// MetadataExtractor reads the JSON document of an anchor (the file itself,
// or the <metadata> of an SVG) and evaluates JSONPath expressions in order:
// the first string match wins.
//
// Its zero value uses DefaultKeyPaths and DefaultLabelPaths.
type MetadataExtractor struct {
	KeyPaths   []string
	LabelPaths []string
}

func (e MetadataExtractor) Extract(ctx context.Context, data []byte, kind AnchorKind) (Identity, error) {
	text := data
	if kind == AnchorSVG {
		doc, err := readSVG(data)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %w", ErrMissingMerchantKey, err)
		}
		text = []byte(doc.Metadata)
	}

	var jobj any
	if err := json.Unmarshal(text, &jobj); err != nil {
		return Identity{}, fmt.Errorf("%w: anchor metadata is not JSON: %w", ErrMissingMerchantKey, err)
	}

	keyPaths, labelPaths := e.KeyPaths, e.LabelPaths
	if len(keyPaths) == 0 {
		keyPaths = DefaultKeyPaths
	}
	if len(labelPaths) == 0 {
		labelPaths = DefaultLabelPaths
	}

	id := Identity{
		PhiKey: firstString(jobj, keyPaths, minKeyLength),
		Label:  firstString(jobj, labelPaths, 1),
	}
	if id.PhiKey == "" {
		return Identity{}, ErrMissingMerchantKey
	}
	return id, nil
}

// firstString returns the first value of paths that is a string of at least
// minLen bytes.
func firstString(jobj any, paths []string, minLen int) string {
	for _, path := range paths {
		v, err := jsonpath.Get(path, jobj)
		if err != nil {
			continue // unknown key
		}
		if s, ok := v.(string); ok && len(s) >= minLen {
			return s
		}
	}
	return ""
}
