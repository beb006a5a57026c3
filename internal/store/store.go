// Package store persists the simulator's two independent records — the
// ledger snapshot and the advisor configuration — as JSON values in a local
// SQLite key-value table.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"github.com/shopspring/decimal"

	"github.com/velora/optionsim/internal/domain"
)

const (
	keyLedger  = "ledger"
	keyAdvisor = "advisor_config"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// LedgerRecord is the persisted shape of the ledger state.  Open positions
// carry no timer handles, so the whole struct marshals cleanly.
type LedgerRecord struct {
	Balance         decimal.Decimal    `json:"balance"`
	ActivePositions []*domain.Position `json:"active_positions"`
	ClosedPositions []*domain.Position `json:"closed_positions"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sqlx.DB
}

// Open connects to (or creates) the SQLite file at path and ensures the
// records table exists.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store.Open: connect: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under the scheduler's concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────────────────────────────────
// Ledger record
// ──────────────────────────────────────────────────────────────────────────────

// SaveLedger upserts the ledger snapshot.
func (s *Store) SaveLedger(ctx context.Context, rec *LedgerRecord) error {
	if err := s.put(ctx, keyLedger, rec); err != nil {
		return fmt.Errorf("store.SaveLedger: %w", err)
	}
	return nil
}

// LoadLedger returns the persisted ledger snapshot, or (nil, nil) when no
// record has been written yet.
func (s *Store) LoadLedger(ctx context.Context) (*LedgerRecord, error) {
	var rec LedgerRecord
	found, err := s.get(ctx, keyLedger, &rec)
	if err != nil {
		return nil, fmt.Errorf("store.LoadLedger: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// DeleteLedger removes the persisted ledger snapshot (account reset).
func (s *Store) DeleteLedger(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, keyLedger); err != nil {
		return fmt.Errorf("store.DeleteLedger: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Advisor config record
// ──────────────────────────────────────────────────────────────────────────────

// SaveAdvisorConfig upserts the advisor configuration record.
func (s *Store) SaveAdvisorConfig(ctx context.Context, cfg *domain.AdvisorConfig) error {
	if err := s.put(ctx, keyAdvisor, cfg); err != nil {
		return fmt.Errorf("store.SaveAdvisorConfig: %w", err)
	}
	return nil
}

// LoadAdvisorConfig returns the persisted advisor config, or (nil, nil) when
// none has been saved.
func (s *Store) LoadAdvisorConfig(ctx context.Context) (*domain.AdvisorConfig, error) {
	var cfg domain.AdvisorConfig
	found, err := s.get(ctx, keyAdvisor, &cfg)
	if err != nil {
		return nil, fmt.Errorf("store.LoadAdvisorConfig: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// KV helpers
// ──────────────────────────────────────────────────────────────────────────────

func (s *Store) put(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(data))
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, out interface{}) (bool, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT value FROM records WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query: %w", err)
	}
	if err = json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("unmarshal: %w", err)
	}
	return true, nil
}
