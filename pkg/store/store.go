// Package store archives signed receipts in SQLite. It is an external
// collaborator of the verification core: the core never persists
// anything, but archived chains can be verified by using the store as
// a lineage resolver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giovannypietro/poi/pkg/receipt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no archived receipt matches.
var ErrNotFound = errors.New("receipt not found")

// Store is a SQLite-backed receipt archive.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open receipt archive: %w", err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and runs migrations.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS receipts (
        receipt_id TEXT PRIMARY KEY,
        agent_id TEXT NOT NULL,
        action TEXT NOT NULL,
        signature TEXT NOT NULL UNIQUE,
        parent_signature TEXT NOT NULL DEFAULT '',
        timestamp DATETIME NOT NULL,
        expiration_time DATETIME NOT NULL,
        body JSON NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_receipts_agent ON receipts(agent_id);
    CREATE INDEX IF NOT EXISTS idx_receipts_parent ON receipts(parent_signature);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate receipt archive: %w", err)
	}
	return nil
}

// Put archives a signed receipt. Unsigned drafts are rejected: the
// archive holds immutable, verifiable records only.
func (s *Store) Put(ctx context.Context, r *receipt.Receipt) error {
	if !r.Signed() {
		return fmt.Errorf("refusing to archive unsigned receipt %s", r.ReceiptID)
	}

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt %s: %w", r.ReceiptID, err)
	}

	query := `INSERT INTO receipts (
        receipt_id, agent_id, action, signature, parent_signature, timestamp, expiration_time, body
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		r.ReceiptID, r.AgentID, r.Action, r.Signature, r.ParentReceiptSignature,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.ExpirationTime.UTC().Format(time.RFC3339Nano),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("insert receipt %s: %w", r.ReceiptID, err)
	}
	return nil
}

// GetByID returns the archived receipt with the given id.
func (s *Store) GetByID(ctx context.Context, receiptID string) (*receipt.Receipt, error) {
	return s.queryOne(ctx, `SELECT body FROM receipts WHERE receipt_id = ?`, receiptID)
}

// GetBySignature returns the archived receipt carrying the given
// base64 signature.
func (s *Store) GetBySignature(ctx context.Context, signature string) (*receipt.Receipt, error) {
	return s.queryOne(ctx, `SELECT body FROM receipts WHERE signature = ?`, signature)
}

// ListByAgent returns the agent's archived receipts, newest first.
func (s *Store) ListByAgent(ctx context.Context, agentID string, limit int) ([]*receipt.Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM receipts WHERE agent_id = ? ORDER BY timestamp DESC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list receipts for %s: %w", agentID, err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []*receipt.Receipt
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		r, err := unmarshalBody(body)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return receipts, nil
}

// Resolve implements lineage.Resolver over the archive.
func (s *Store) Resolve(signature string) (*receipt.Receipt, error) {
	return s.GetBySignature(context.Background(), signature)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryOne(ctx context.Context, query string, arg any) (*receipt.Receipt, error) {
	var body string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return unmarshalBody(body)
}

func unmarshalBody(body string) (*receipt.Receipt, error) {
	var r receipt.Receipt
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("unmarshal archived receipt: %w", err)
	}
	return &r, nil
}
