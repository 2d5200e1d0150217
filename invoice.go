package phiterm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/phiterm/canon"
)

// Protocol tags shared by every message.
const (
	CanonJCS   = "JCS"
	HashSHA256 = "sha256"

	InvoiceTag = "PHI-INVOICE-1"
)

var (
	// ErrInvalidMessage is returned for malformed invoices and settlements.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrContentMismatch is returned when a message id does not hash its content.
	ErrContentMismatch = errors.New("content id mismatch")
)

// Money is an amount on the wire, always a decimal string.
type Money struct {
	Phi string `json:"phi"`
}

// InvoiceStatus is the store-side state of an invoice. It is never hashed.
type InvoiceStatus string

const (
	InvoiceOpen     InvoiceStatus = "OPEN"
	InvoiceSettled  InvoiceStatus = "SETTLED"
	InvoiceCanceled InvoiceStatus = "CANCELED"
	InvoiceExpired  InvoiceStatus = "EXPIRED"
)

// Invoice is a merchant's content-addressed payment request.
type Invoice struct {
	V       string `json:"v"`
	Canon   string `json:"canon"`
	HashAlg string `json:"hashAlg"`

	InvoiceID    string `json:"invoiceId,omitempty"`
	CreatedPulse int64  `json:"createdPulse"`
	ExpiresPulse int64  `json:"expiresPulse,omitempty"`

	MerchantPhiKey string `json:"merchantPhiKey"`
	MerchantLabel  string `json:"merchantLabel,omitempty"`

	Amount Money  `json:"amount"`
	Memo   string `json:"memo,omitempty"`

	// Nonce must be echoed by the settlement paying this invoice.
	Nonce string `json:"nonce"`
}

// InvoiceRequest holds what the merchant decides when issuing an invoice.
type InvoiceRequest struct {
	MerchantPhiKey string
	MerchantLabel  string
	AmountPhi      string
	Memo           string
	CreatedPulse   int64
	ExpiresPulse   int64 // 0 for no expiry
}

// CreateInvoice validates req, draws a fresh nonce and returns the
// content-addressed invoice.
func CreateInvoice(req InvoiceRequest) (Invoice, error) {
	var errs []error
	if strings.TrimSpace(req.MerchantPhiKey) == "" {
		errs = append(errs, fmt.Errorf("%w: missing merchant key", ErrInvalidMessage))
	}
	amount := strings.TrimSpace(req.AmountPhi)
	if err := validateAmount(amount); err != nil {
		errs = append(errs, err)
	}
	if req.ExpiresPulse != 0 && req.ExpiresPulse <= req.CreatedPulse {
		errs = append(errs, fmt.Errorf("%w: invoice expires at pulse %d before its creation at %d", ErrInvalidMessage, req.ExpiresPulse, req.CreatedPulse))
	}
	if err := errors.Join(errs...); err != nil {
		return Invoice{}, err
	}

	nonce, err := NewNonce(MinNonceBytes)
	if err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		V:              InvoiceTag,
		Canon:          CanonJCS,
		HashAlg:        HashSHA256,
		CreatedPulse:   req.CreatedPulse,
		ExpiresPulse:   req.ExpiresPulse,
		MerchantPhiKey: req.MerchantPhiKey,
		MerchantLabel:  req.MerchantLabel,
		Amount:         Money{Phi: amount},
		Memo:           req.Memo,
		Nonce:          nonce,
	}
	if inv.InvoiceID, err = inv.contentID(); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// contentID hashes the invoice core, that is the invoice without its id.
func (inv Invoice) contentID() (string, error) {
	inv.InvoiceID = ""
	return canon.HashValue(inv)
}

// Verify checks the invoice is well formed and that its id hashes its content.
func (inv Invoice) Verify() error {
	var errs []error
	if inv.V != InvoiceTag {
		errs = append(errs, fmt.Errorf("%w: unexpected tag %q", ErrInvalidMessage, inv.V))
	}
	if inv.Canon != CanonJCS || inv.HashAlg != HashSHA256 {
		errs = append(errs, fmt.Errorf("%w: unsupported canon %q or hash %q", ErrInvalidMessage, inv.Canon, inv.HashAlg))
	}
	if inv.MerchantPhiKey == "" {
		errs = append(errs, fmt.Errorf("%w: missing merchant key", ErrInvalidMessage))
	}
	if len(inv.Nonce) < 22 {
		errs = append(errs, fmt.Errorf("%w: nonce %q is too short", ErrInvalidMessage, inv.Nonce))
	}
	if err := validateAmount(inv.Amount.Phi); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	id, err := inv.contentID()
	if err != nil {
		return err
	}
	if id != inv.InvoiceID {
		return fmt.Errorf("invoice %q: %w", inv.InvoiceID, ErrContentMismatch)
	}
	return nil
}

// Expired reports whether the invoice has lapsed at the given pulse.
func (inv Invoice) Expired(pulse int64) bool {
	return inv.ExpiresPulse != 0 && pulse >= inv.ExpiresPulse
}

// Micro returns the invoiced amount.
func (inv Invoice) Micro() Micro { return PhiToMicro(inv.Amount.Phi) }

func validateAmount(phi string) error {
	m, err := ParsePhi(phi)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if !m.IsPositive() {
		return fmt.Errorf("%w: amount %q must be positive", ErrInvalidMessage, phi)
	}
	return nil
}
