package phiterm

import (
	"context"
	"encoding/json"
)

// Purpose tells the owner why their presence is requested.
type Purpose string

const (
	PurposeOpen  Purpose = "OPEN"
	PurposeClose Purpose = "CLOSE"
)

// Presence is the answer of a PresenceVerifier.
type Presence struct {
	OK    bool
	Proof json.RawMessage // optional evidence, embedded in the settlement document on close
}

// PresenceVerifier confirms the merchant is physically present before a
// portal opens or closes.
type PresenceVerifier interface {
	Verify(ctx context.Context, purpose Purpose) (Presence, error)
}

// PresenceFunc adapts a function to the PresenceVerifier interface.
type PresenceFunc func(ctx context.Context, purpose Purpose) (Presence, error)

func (f PresenceFunc) Verify(ctx context.Context, purpose Purpose) (Presence, error) {
	return f(ctx, purpose)
}

// AlwaysPresent approves every request without proof.
var AlwaysPresent PresenceVerifier = PresenceFunc(func(context.Context, Purpose) (Presence, error) {
	return Presence{OK: true}, nil
})
