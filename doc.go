// Package phiterm implements an offline-first point-of-sale ledger for Φ
// payments. A merchant portal issues invoices, accepts the settlements
// customers send back, and keeps a tamper-evident, append-only record of the
// payments it accepted, without any server or account.
//
// The core functionalities include:
//   - Protocol Messages: content-addressed invoices and settlements, hashed
//     over their canonical JSON form (see package canon). A settlement pays
//     an invoice when it echoes both the invoice id and its random nonce.
//   - Amount Model: exact fixed-point Φ (micro-Φ) and USD (cents) amounts,
//     with rate conversion rounded half up.
//   - Portal: the ARMED, OPEN, CLOSED register session. Every accepted
//     settlement is folded into a rolling hash chain, and closing the portal
//     mints a settlement document that auditors can replay.
//   - Ledger Store: invoices, the settlement inbox, receipts and the session,
//     kept in memory, in JSONL files or in SQLite (package sqlstore).
//   - Ingestion: one entry point decoding every transport encoding (shareable
//     URLs, raw or base64url JSON, SVG glyphs).
//
// This package serves as the foundational logic for the `phiterm`
// command-line tool.
package phiterm
