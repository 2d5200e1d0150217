package phiterm

import "testing"

func TestNewNonce(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		n, err := NewNonce(0)
		if err != nil {
			t.Fatalf("NewNonce() error: %v", err)
		}
		if len(n) != 22 { // 16 bytes, unpadded
			t.Errorf("NewNonce() = %q, want 22 characters", n)
		}
		if seen[n] {
			t.Fatalf("NewNonce() returned %q twice", n)
		}
		seen[n] = true

		b, err := b64urlDecode(n)
		if err != nil || len(b) != MinNonceBytes {
			t.Errorf("b64urlDecode(%q) = %d bytes, %v", n, len(b), err)
		}
	}
}

func TestB64urlDecode_Padding(t *testing.T) {
	for _, in := range []string{"aGk", "aGk=", " aGk= "} {
		b, err := b64urlDecode(in)
		if err != nil || string(b) != "hi" {
			t.Errorf("b64urlDecode(%q) = %q, %v, want \"hi\"", in, b, err)
		}
	}
}
