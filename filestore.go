package phiterm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Files of a FileStore folder.
const (
	invoicesFile    = "invoices.jsonl"
	settlementsFile = "settlements.jsonl"
	receiptsFile    = "receipts.jsonl"
	sessionFile     = "session.json"
	lockFile        = ".lock"
)

// FileStore is a Store in a folder of JSONL files.
//
// Collections are append-only: every put appends a line, and when decoding
// the last line for an id wins. The session is a single JSON file replaced
// atomically.
//
// Every call holds an OS lock on the folder, so that several processes can
// share a store.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// OpenFileStore opens the store in folder dir, creating it if needed.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create store folder: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store folder.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(name string) string { return filepath.Join(s.dir, name) }

// lock takes the folder lock and returns its release.
func (s *FileStore) lock() (func(), error) {
	s.mu.Lock()
	f, err := os.OpenFile(s.path(lockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot open the store lock: %w", err)
	}
	if err := lockExclusive(f); err != nil {
		f.Close()
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot lock the store: %w", err)
	}
	return func() {
		if err := unlockFile(f); err != nil {
			log.Printf("cannot unlock the store: %v", err)
		}
		f.Close()
		s.mu.Unlock()
	}, nil
}

// appendLine appends v as a JSON line to the file name.
func (s *FileStore) appendLine(name string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	if err := dropTornLine(s.path(name)); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("cannot append to %s: %w", name, err)
	}
	return f.Close()
}

// dropTornLine truncates the unterminated last line of path, if any, so that
// the next append starts on a line of its own.
func dropTornLine(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || len(data) == 0 || data[len(data)-1] == '\n' {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("dropping torn line at the end of %s", filepath.Base(path))
	return os.Truncate(path, int64(bytes.LastIndexByte(data, '\n')+1))
}

// decodeLines reads the JSONL file name into a map keyed by id, the last
// line for an id winning. A missing file is empty.
//
// A torn final line, as left by a crash during an append, is ignored.
func decodeLines[T any](path string, id func(T) string) (map[string]T, error) {
	list := make(map[string]T)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return list, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	var pending error // error of the previous line, fatal unless it was the last one
	for lineno := 1; scanner.Scan(); lineno++ {
		if pending != nil {
			return nil, pending
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			pending = fmt.Errorf("%s:%d: %w", filepath.Base(path), lineno, err)
			continue
		}
		list[id(v)] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pending != nil {
		log.Printf("ignoring torn line %v", pending)
	}
	return list, nil
}

func invoiceKey(r InvoiceRecord) string       { return r.Invoice.InvoiceID }
func settlementKey(r SettlementRecord) string { return r.Settlement.SettlementID }
func receiptKey(r ReceiptRow) string          { return r.SettlementID }

func (s *FileStore) PutInvoice(ctx context.Context, rec InvoiceRecord) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return s.appendLine(invoicesFile, rec)
}

func (s *FileStore) Invoice(ctx context.Context, invoiceID string) (InvoiceRecord, error) {
	unlock, err := s.lock()
	if err != nil {
		return InvoiceRecord{}, err
	}
	defer unlock()
	list, err := decodeLines(s.path(invoicesFile), invoiceKey)
	if err != nil {
		return InvoiceRecord{}, err
	}
	rec, ok := list[invoiceID]
	if !ok {
		return InvoiceRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *FileStore) SetInvoiceStatus(ctx context.Context, invoiceID string, status InvoiceStatus) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	list, err := decodeLines(s.path(invoicesFile), invoiceKey)
	if err != nil {
		return err
	}
	rec, ok := list[invoiceID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	return s.appendLine(invoicesFile, rec)
}

func (s *FileStore) Invoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceRecord, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	list, err := decodeLines(s.path(invoicesFile), invoiceKey)
	if err != nil {
		return nil, err
	}
	return filterInvoices(slices.Collect(maps.Values(list)), filter), nil
}

func (s *FileStore) PutSettlement(ctx context.Context, rec SettlementRecord) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	list, err := decodeLines(s.path(settlementsFile), settlementKey)
	if err != nil {
		return err
	}
	if _, ok := list[rec.Settlement.SettlementID]; ok {
		return nil
	}
	return s.appendLine(settlementsFile, rec)
}

func (s *FileStore) Settlements(ctx context.Context, limit int) ([]SettlementRecord, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	list, err := decodeLines(s.path(settlementsFile), settlementKey)
	if err != nil {
		return nil, err
	}
	return sortSettlements(slices.Collect(maps.Values(list)), limit), nil
}

func (s *FileStore) PutReceipt(ctx context.Context, row ReceiptRow) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	list, err := decodeLines(s.path(receiptsFile), receiptKey)
	if err != nil {
		return err
	}
	if _, ok := list[row.SettlementID]; ok {
		return nil
	}
	if err := checkSeq(slices.Collect(maps.Values(list)), row); err != nil {
		return err
	}
	return s.appendLine(receiptsFile, row)
}

func (s *FileStore) HasReceipt(ctx context.Context, settlementID string) (bool, error) {
	unlock, err := s.lock()
	if err != nil {
		return false, err
	}
	defer unlock()
	list, err := decodeLines(s.path(receiptsFile), receiptKey)
	if err != nil {
		return false, err
	}
	_, ok := list[settlementID]
	return ok, nil
}

func (s *FileStore) Receipts(ctx context.Context) ([]ReceiptRow, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	list, err := decodeLines(s.path(receiptsFile), receiptKey)
	if err != nil {
		return nil, err
	}
	rows := slices.Collect(maps.Values(list))
	slices.SortFunc(rows, bySeq)
	return rows, nil
}

func (s *FileStore) Session(ctx context.Context) (*PortalMeta, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.readSession()
}

func (s *FileStore) readSession() (*PortalMeta, error) {
	data, err := os.ReadFile(s.path(sessionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta PortalMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", sessionFile, err)
	}
	return &meta, nil
}

func (s *FileStore) PutSession(ctx context.Context, meta PortalMeta) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	stored, err := s.readSession()
	if err != nil {
		return err
	}
	if err := checkVersion(stored, meta); err != nil {
		return err
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, sessionFile+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op once renamed
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(sessionFile))
}

func (s *FileStore) Clear(ctx context.Context) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	var errs []error
	for _, name := range []string{invoicesFile, settlementsFile, receiptsFile, sessionFile} {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
