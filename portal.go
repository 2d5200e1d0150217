package phiterm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/etnz/phiterm/canon"
)

const (
	PortalTag           = "PHI-PORTAL-1"
	ReceiptRowTag       = "PHI-PORTAL-RECEIPTROW-1"
	PortalSettlementTag = "PHI-PORTAL-SETTLEMENT-1"

	rootSeedText = "PHI_PORTAL_ROOT_0"
)

// PortalStatus is the state of the merchant register. A device without a
// session is LOCKED; that state is never persisted.
type PortalStatus string

const (
	PortalLocked PortalStatus = "LOCKED"
	PortalArmed  PortalStatus = "ARMED"
	PortalOpen   PortalStatus = "OPEN"
	PortalClosed PortalStatus = "CLOSED"
)

var (
	ErrIllegalTransition           = errors.New("illegal portal transition")
	ErrMissingMerchantKey          = errors.New("could not extract a merchant phi key from the anchor glyph")
	ErrPresenceDeclined            = errors.New("owner presence was not verified")
	ErrMisaddressed                = errors.New("settlement not addressed to this merchant")
	ErrDuplicateReceipt            = errors.New("receipt already recorded")
	ErrUnmatchedSettlementRejected = errors.New("direct receives disabled (no matching invoice)")
)

// PortalMeta is the single mutable session record of a register.
//
// It is a versioned value: every transition returns a copy with Version
// incremented, and stores refuse writes that skip or repeat a version.
type PortalMeta struct {
	V       string `json:"v"`
	Canon   string `json:"canon"`
	HashAlg string `json:"hashAlg"`

	PortalID       string `json:"portalId"`
	MerchantPhiKey string `json:"merchantPhiKey"`
	MerchantLabel  string `json:"merchantLabel,omitempty"`

	Status PortalStatus `json:"status"`

	OpenedAtMs  int64 `json:"openedAtMs"`
	OpenedPulse int64 `json:"openedPulse,omitempty"`
	ClosedAtMs  int64 `json:"closedAtMs,omitempty"`
	ClosedPulse int64 `json:"closedPulse,omitempty"`

	ReceiveCount  int    `json:"receiveCount"`
	TotalMicroPhi Micro  `json:"totalMicroPhi"`
	TotalPhi      string `json:"totalPhi"`

	RollingRoot      string `json:"rollingRoot"`
	LastSettlementID string `json:"lastSettlementId,omitempty"`

	AllowDirectReceives bool `json:"allowDirectReceives"`

	AnchorName string     `json:"anchorName,omitempty"`
	AnchorHash string     `json:"anchorHash,omitempty"`
	AnchorKind AnchorKind `json:"anchorKind,omitempty"`

	Version int64 `json:"version"`
}

func (m PortalMeta) next() PortalMeta {
	m.Version++
	return m
}

// ReceiptRow records one accepted settlement.
type ReceiptRow struct {
	V              string `json:"v"`
	SettlementID   string `json:"settlementId"`
	SettlementHash string `json:"settlementHash"`
	// Seq is the 1-based acceptance order, the order of the rolling root fold.
	Seq          int64 `json:"seq"`
	ReceivedAtMs int64 `json:"receivedAtMs"`

	InvoiceID      string `json:"invoiceId,omitempty"`
	MatchedInvoice bool   `json:"matchedInvoice"`

	AmountPhi      string `json:"amountPhi"`
	AmountMicroPhi Micro  `json:"amountMicroPhi"`

	FromPhiKey string `json:"fromPhiKey"`
	ToPhiKey   string `json:"toPhiKey"`

	Raw Settlement `json:"raw"`
}

// SettlementDocument is the artifact minted when a portal closes. It can be
// verified by replaying the rolling root over its receipts.
type SettlementDocument struct {
	V       string `json:"v"`
	Canon   string `json:"canon"`
	HashAlg string `json:"hashAlg"`

	PortalID       string `json:"portalId"`
	MerchantPhiKey string `json:"merchantPhiKey"`
	MerchantLabel  string `json:"merchantLabel,omitempty"`

	OpenedAtMs  int64 `json:"openedAtMs"`
	ClosedAtMs  int64 `json:"closedAtMs"`
	OpenedPulse int64 `json:"openedPulse,omitempty"`
	ClosedPulse int64 `json:"closedPulse,omitempty"`

	ReceiveCount  int    `json:"receiveCount"`
	TotalMicroPhi Micro  `json:"totalMicroPhi"`
	TotalPhi      string `json:"totalPhi"`

	RollingRoot string `json:"rollingRoot"`

	Receipts []ReceiptRow `json:"receipts"`

	OwnerCloseProof json.RawMessage `json:"ownerCloseProof,omitempty"`
}

// Anchor is the merchant glyph file a portal is armed from.
type Anchor struct {
	Name string
	Kind AnchorKind
	Text []byte
}

// RootSeed is the rolling root of a portal without receipts.
func RootSeed() string { return canon.Hash(rootSeedText) }

// RollRoot folds one accepted settlement into the rolling root.
func RollRoot(prev, settlementID, settlementHash string) string {
	return canon.Hash(prev + ":" + settlementID + ":" + settlementHash)
}

var anchorExt = regexp.MustCompile(`(?i)\.(svg|json)$`)

// ArmPortal returns a fresh ARMED session for the merchant identified in
// anchor. prev is the current session, nil for a LOCKED device.
//
// An OPEN portal cannot be re-armed: it must be closed first.
func ArmPortal(prev *PortalMeta, anchor Anchor, id Identity, now time.Time) (PortalMeta, error) {
	if prev != nil && prev.Status == PortalOpen {
		return PortalMeta{}, fmt.Errorf("%w: cannot arm an %s portal, close it first", ErrIllegalTransition, prev.Status)
	}
	if id.PhiKey == "" {
		return PortalMeta{}, ErrMissingMerchantKey
	}
	label := id.Label
	if label == "" {
		label = anchorExt.ReplaceAllString(anchor.Name, "")
	}
	anchorHash := canon.Hash(string(anchor.Text))

	portalID, err := canon.HashValue(struct {
		MerchantPhiKey string     `json:"merchantPhiKey"`
		MerchantLabel  string     `json:"merchantLabel"`
		AnchorHash     string     `json:"anchorHash"`
		AnchorName     string     `json:"anchorName"`
		AnchorKind     AnchorKind `json:"anchorKind"`
	}{id.PhiKey, label, anchorHash, anchor.Name, anchor.Kind})
	if err != nil {
		return PortalMeta{}, err
	}

	return PortalMeta{
		V:              PortalTag,
		Canon:          CanonJCS,
		HashAlg:        HashSHA256,
		PortalID:       portalID,
		MerchantPhiKey: id.PhiKey,
		MerchantLabel:  label,
		Status:         PortalArmed,
		OpenedAtMs:     now.UnixMilli(),
		TotalMicroPhi:  NewMicro(0),
		TotalPhi:       MicroToPhi(NewMicro(0)),
		RollingRoot:    RootSeed(),
		AnchorName:     anchor.Name,
		AnchorHash:     anchorHash,
		AnchorKind:     anchor.Kind,
		// the store is cleared when arming, so the history restarts at 1.
		Version: 1,
	}, nil
}

// OpenPortal moves an ARMED portal to OPEN. Owner presence must have been
// verified by the caller.
func OpenPortal(m PortalMeta, now time.Time) (PortalMeta, error) {
	if m.Status != PortalArmed {
		return PortalMeta{}, fmt.Errorf("%w: cannot open an %s portal", ErrIllegalTransition, m.Status)
	}
	m = m.next()
	m.Status = PortalOpen
	m.OpenedAtMs = now.UnixMilli()
	m.OpenedPulse = PulseAt(now)
	return m, nil
}

// SetDirectReceives toggles acceptance of settlements without a matching
// invoice. A CLOSED portal is frozen.
func SetDirectReceives(m PortalMeta, allow bool) (PortalMeta, error) {
	if m.Status == PortalClosed {
		return PortalMeta{}, fmt.Errorf("%w: portal is closed", ErrIllegalTransition)
	}
	m = m.next()
	m.AllowDirectReceives = allow
	return m, nil
}
