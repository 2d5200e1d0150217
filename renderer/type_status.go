package renderer

import "github.com/etnz/phiterm"

// Status is the view of the current portal session.
type Status struct {
	Locked bool

	Label          string
	MerchantPhiKey string
	PortalID       string
	Status         string
	Version        int64

	OpenedAt    string
	OpenedPulse int64
	ClosedAt    string
	ClosedPulse int64

	ReceiveCount int
	TotalPhi     string
	TotalUSD     string
	Quote        string

	RollingRoot         string
	AllowDirectReceives bool
}

// NewStatus builds the status view of meta. A nil meta is a LOCKED device.
func NewStatus(meta *phiterm.PortalMeta, quote phiterm.Quote) *Status {
	if meta == nil {
		return &Status{Locked: true, Status: string(phiterm.PortalLocked)}
	}
	return &Status{
		Label:               meta.MerchantLabel,
		MerchantPhiKey:      meta.MerchantPhiKey,
		PortalID:            shortID(meta.PortalID),
		Status:              string(meta.Status),
		Version:             meta.Version,
		OpenedAt:            stamp(meta.OpenedAtMs),
		OpenedPulse:         meta.OpenedPulse,
		ClosedAt:            stamp(meta.ClosedAtMs),
		ClosedPulse:         meta.ClosedPulse,
		ReceiveCount:        meta.ReceiveCount,
		TotalPhi:            meta.TotalPhi,
		TotalUSD:            usd(meta.TotalMicroPhi, quote),
		Quote:               quoteLabel(quote),
		RollingRoot:         meta.RollingRoot,
		AllowDirectReceives: meta.AllowDirectReceives,
	}
}
