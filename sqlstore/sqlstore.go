// Package sqlstore is a phiterm.Store backed by SQLite.
//
// Each record is kept as its JSON document, next to the columns needed to
// key, filter and order it.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/phiterm"
	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settlements (
	id TEXT PRIMARY KEY,
	created_at_ms INTEGER NOT NULL,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS receipts (
	settlement_id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL UNIQUE,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session (
	k TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status, created_at_ms);
CREATE INDEX IF NOT EXISTS idx_settlements_created ON settlements(created_at_ms);
`

// sessionKey is the key of the single session row.
const sessionKey = "current"

// Store implements phiterm.Store on a SQL database.
type Store struct {
	db *sql.DB
}

var _ phiterm.Store = (*Store)(nil)

// Open opens (creating it if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New returns a store on db, creating the tables if needed.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("cannot create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) PutInvoice(ctx context.Context, rec phiterm.InvoiceRecord) error {
	doc, err := json.Marshal(rec.Invoice)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO invoices (id, status, created_at_ms, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, created_at_ms = excluded.created_at_ms, doc = excluded.doc`,
		rec.Invoice.InvoiceID, string(rec.Status), rec.CreatedAtMs, string(doc))
	return err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (phiterm.InvoiceRecord, error) {
	var (
		rec    phiterm.InvoiceRecord
		status string
		doc    string
	)
	if err := row.Scan(&status, &rec.CreatedAtMs, &doc); err != nil {
		return phiterm.InvoiceRecord{}, err
	}
	rec.Status = phiterm.InvoiceStatus(status)
	if err := json.Unmarshal([]byte(doc), &rec.Invoice); err != nil {
		return phiterm.InvoiceRecord{}, fmt.Errorf("invalid stored invoice: %w", err)
	}
	return rec, nil
}

func (s *Store) Invoice(ctx context.Context, invoiceID string) (phiterm.InvoiceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT status, created_at_ms, doc FROM invoices WHERE id = ?`, invoiceID)
	rec, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return phiterm.InvoiceRecord{}, fmt.Errorf("invoice %q: %w", invoiceID, phiterm.ErrNotFound)
	}
	return rec, err
}

func (s *Store) SetInvoiceStatus(ctx context.Context, invoiceID string, status phiterm.InvoiceStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE invoices SET status = ? WHERE id = ?`, string(status), invoiceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("invoice %q: %w", invoiceID, phiterm.ErrNotFound)
	}
	return nil
}

func (s *Store) Invoices(ctx context.Context, filter phiterm.InvoiceFilter) ([]phiterm.InvoiceRecord, error) {
	query := `SELECT status, created_at_ms, doc FROM invoices`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at_ms DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []phiterm.InvoiceRecord
	for rows.Next() {
		rec, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (s *Store) PutSettlement(ctx context.Context, rec phiterm.SettlementRecord) error {
	doc, err := json.Marshal(rec.Settlement)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO settlements (id, created_at_ms, doc) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		rec.Settlement.SettlementID, rec.CreatedAtMs, string(doc))
	return err
}

func (s *Store) Settlements(ctx context.Context, limit int) ([]phiterm.SettlementRecord, error) {
	query := `SELECT created_at_ms, doc FROM settlements ORDER BY created_at_ms DESC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []phiterm.SettlementRecord
	for rows.Next() {
		var (
			rec phiterm.SettlementRecord
			doc string
		)
		if err := rows.Scan(&rec.CreatedAtMs, &doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(doc), &rec.Settlement); err != nil {
			return nil, fmt.Errorf("invalid stored settlement: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (s *Store) PutReceipt(ctx context.Context, row phiterm.ReceiptRow) error {
	doc, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO receipts (settlement_id, seq, doc) VALUES (?, ?, ?)
		ON CONFLICT(settlement_id) DO NOTHING`,
		row.SettlementID, row.Seq, string(doc))
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: receipt seq %d is taken", phiterm.ErrStaleSession, row.Seq)
	}
	return err
}

func (s *Store) HasReceipt(ctx context.Context, settlementID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipts WHERE settlement_id = ?`, settlementID).Scan(&n)
	return n > 0, err
}

func (s *Store) Receipts(ctx context.Context) ([]phiterm.ReceiptRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM receipts ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []phiterm.ReceiptRow
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var row phiterm.ReceiptRow
		if err := json.Unmarshal([]byte(doc), &row); err != nil {
			return nil, fmt.Errorf("invalid stored receipt: %w", err)
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

func (s *Store) Session(ctx context.Context) (*phiterm.PortalMeta, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM session WHERE k = ?`, sessionKey).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta phiterm.PortalMeta
	if err := json.Unmarshal([]byte(doc), &meta); err != nil {
		return nil, fmt.Errorf("invalid stored session: %w", err)
	}
	return &meta, nil
}

// PutSession reads the stored version and writes meta in one transaction.
func (s *Store) PutSession(ctx context.Context, meta phiterm.PortalMeta) error {
	doc, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM session WHERE k = ?`, sessionKey).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if meta.Version != current+1 {
		return fmt.Errorf("%w: version %d over stored version %d", phiterm.ErrStaleSession, meta.Version, current)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO session (k, version, doc) VALUES (?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET version = excluded.version, doc = excluded.doc`,
		sessionKey, meta.Version, string(doc)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"invoices", "settlements", "receipts", "session"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("cannot clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
