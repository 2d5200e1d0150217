package phiterm

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemStore is an in-memory Store. Its zero value is ready to use.
type MemStore struct {
	mu          sync.Mutex
	invoices    map[string]InvoiceRecord
	settlements map[string]SettlementRecord
	receipts    map[string]ReceiptRow
	session     *PortalMeta
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) init() {
	if s.invoices == nil {
		s.invoices = make(map[string]InvoiceRecord)
		s.settlements = make(map[string]SettlementRecord)
		s.receipts = make(map[string]ReceiptRow)
	}
}

func (s *MemStore) PutInvoice(ctx context.Context, rec InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.invoices[rec.Invoice.InvoiceID] = rec
	return nil
}

func (s *MemStore) Invoice(ctx context.Context, invoiceID string) (InvoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.invoices[invoiceID]
	if !ok {
		return InvoiceRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemStore) SetInvoiceStatus(ctx context.Context, invoiceID string, status InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	s.invoices[invoiceID] = rec
	return nil
}

func (s *MemStore) Invoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterInvoices(slices.Collect(maps.Values(s.invoices)), filter), nil
}

func (s *MemStore) PutSettlement(ctx context.Context, rec SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if _, ok := s.settlements[rec.Settlement.SettlementID]; !ok {
		s.settlements[rec.Settlement.SettlementID] = rec
	}
	return nil
}

func (s *MemStore) Settlements(ctx context.Context, limit int) ([]SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortSettlements(slices.Collect(maps.Values(s.settlements)), limit), nil
}

func (s *MemStore) PutReceipt(ctx context.Context, row ReceiptRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if _, ok := s.receipts[row.SettlementID]; ok {
		return nil
	}
	if err := checkSeq(slices.Collect(maps.Values(s.receipts)), row); err != nil {
		return err
	}
	s.receipts[row.SettlementID] = row
	return nil
}

func (s *MemStore) HasReceipt(ctx context.Context, settlementID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.receipts[settlementID]
	return ok, nil
}

func (s *MemStore) Receipts(ctx context.Context) ([]ReceiptRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := slices.Collect(maps.Values(s.receipts))
	slices.SortFunc(rows, bySeq)
	return rows, nil
}

func (s *MemStore) Session(ctx context.Context) (*PortalMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	meta := *s.session
	return &meta, nil
}

func (s *MemStore) PutSession(ctx context.Context, meta PortalMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkVersion(s.session, meta); err != nil {
		return err
	}
	s.session = &meta
	return nil
}

func (s *MemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices, s.settlements, s.receipts, s.session = nil, nil, nil, nil
	return nil
}
