package phiterm

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// MinNonceBytes is the entropy of every invoice nonce.
const MinNonceBytes = 16

// NewNonce returns n random bytes (at least MinNonceBytes) in base64url
// without padding.
func NewNonce(n int) (string, error) {
	if n < MinNonceBytes {
		n = MinNonceBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cannot generate nonce: %w", err)
	}
	return b64urlEncode(buf), nil
}

func b64urlEncode(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// b64urlDecode accepts base64url with or without padding.
func b64urlDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(s), "="))
}
