package phiterm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/phiterm/canon"
)

const SettlementTag = "PHI-SETTLEMENT-1"

// Settlement is a payer's content-addressed proof of payment.
type Settlement struct {
	V       string `json:"v"`
	Canon   string `json:"canon"`
	HashAlg string `json:"hashAlg"`

	SettlementID  string `json:"settlementId,omitempty"`
	ReceivedPulse int64  `json:"receivedPulse,omitempty"`

	// InvoiceID and Nonce bind the settlement to the invoice it pays.
	InvoiceID string `json:"invoiceId"`
	Nonce     string `json:"nonce"`

	FromPhiKey string `json:"fromPhiKey"`
	ToPhiKey   string `json:"toPhiKey"`

	Amount Money `json:"amount"`

	Proof json.RawMessage `json:"proof,omitempty"`
	TxRef string          `json:"txRef,omitempty"`
	Memo  string          `json:"memo,omitempty"`
}

// SettlementRequest holds what the payer provides to settle an invoice.
type SettlementRequest struct {
	FromPhiKey    string
	ToPhiKey      string
	AmountPhi     string
	Memo          string
	Proof         json.RawMessage
	TxRef         string
	ReceivedPulse int64
}

// CreateSettlement binds a payment to inv and returns the content-addressed
// settlement. The amount is not required to equal the invoiced one.
func CreateSettlement(inv Invoice, req SettlementRequest) (Settlement, error) {
	amount := strings.TrimSpace(req.AmountPhi)

	var errs []error
	if inv.InvoiceID == "" || inv.Nonce == "" {
		errs = append(errs, fmt.Errorf("%w: invoice has no id or nonce", ErrInvalidMessage))
	}
	if req.FromPhiKey == "" || req.ToPhiKey == "" {
		errs = append(errs, fmt.Errorf("%w: missing payer or payee key", ErrInvalidMessage))
	}
	if err := validateAmount(amount); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Settlement{}, err
	}

	s := Settlement{
		V:             SettlementTag,
		Canon:         CanonJCS,
		HashAlg:       HashSHA256,
		ReceivedPulse: req.ReceivedPulse,
		InvoiceID:     inv.InvoiceID,
		Nonce:         inv.Nonce,
		FromPhiKey:    req.FromPhiKey,
		ToPhiKey:      req.ToPhiKey,
		Amount:        Money{Phi: amount},
		Proof:         req.Proof,
		TxRef:         req.TxRef,
		Memo:          req.Memo,
	}
	var err error
	if s.SettlementID, err = s.contentID(); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

func (s Settlement) contentID() (string, error) {
	s.SettlementID = ""
	return canon.HashValue(s)
}

// Hash returns the hash of the whole settlement, id included, as recorded
// in receipts and folded into the rolling root.
func (s Settlement) Hash() (string, error) { return canon.HashValue(s) }

// Verify checks the settlement is well formed and that its id hashes its content.
func (s Settlement) Verify() error {
	var errs []error
	if s.V != SettlementTag {
		errs = append(errs, fmt.Errorf("%w: unexpected tag %q", ErrInvalidMessage, s.V))
	}
	if s.Canon != CanonJCS || s.HashAlg != HashSHA256 {
		errs = append(errs, fmt.Errorf("%w: unsupported canon %q or hash %q", ErrInvalidMessage, s.Canon, s.HashAlg))
	}
	if s.FromPhiKey == "" || s.ToPhiKey == "" {
		errs = append(errs, fmt.Errorf("%w: missing payer or payee key", ErrInvalidMessage))
	}
	if err := validateAmount(s.Amount.Phi); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	id, err := s.contentID()
	if err != nil {
		return err
	}
	if id != s.SettlementID {
		return fmt.Errorf("settlement %q: %w", s.SettlementID, ErrContentMismatch)
	}
	return nil
}

// Micro returns the settled amount.
func (s Settlement) Micro() Micro { return PhiToMicro(s.Amount.Phi) }

// MatchesInvoice reports whether s pays inv: both the invoice id and the
// nonce must be equal. Amounts are not compared.
func MatchesInvoice(s Settlement, inv Invoice) bool {
	return s.InvoiceID == inv.InvoiceID && s.Nonce == inv.Nonce
}
