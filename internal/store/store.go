package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable single source of truth shared by all workers:
// asset registry, signals, positions, orders and job-run audit rows.
// Coordination leases live in the badger cache, not here.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database and applies the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn between worker goroutines in-process.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS assets (
  symbol TEXT PRIMARY KEY,
  volume_24h TEXT NOT NULL,
  last_scanned TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1
);`,
		`CREATE INDEX IF NOT EXISTS idx_assets_active ON assets(active, last_scanned DESC);`,
		`
CREATE TABLE IF NOT EXISTS signals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  direction TEXT NOT NULL,
  confidence TEXT NOT NULL,
  suggested_stop TEXT NOT NULL,
  suggested_target TEXT NOT NULL,
  generated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON signals(symbol, generated_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  direction TEXT NOT NULL,
  entry_price TEXT NOT NULL,
  size TEXT NOT NULL,
  stop_loss TEXT NOT NULL,
  take_profit TEXT NOT NULL,
  status TEXT NOT NULL,
  opening_order_id TEXT,
  closing_order_id TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		// The central invariant: at most one live position per symbol.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_live_symbol
  ON positions(symbol) WHERE status IN ('pending','open','closing');`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status, updated_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS orders (
  client_order_id TEXT PRIMARY KEY,
  exchange_order_id TEXT,
  position_id TEXT NOT NULL REFERENCES positions(id),
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  requested_size TEXT NOT NULL,
  requested_price TEXT NOT NULL,
  filled_size TEXT NOT NULL DEFAULT '0',
  avg_fill_price TEXT NOT NULL DEFAULT '0',
  status TEXT NOT NULL,
  last_reconciled TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_position ON orders(position_id);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);`,
		`
CREATE TABLE IF NOT EXISTS positions_archive (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  direction TEXT NOT NULL,
  entry_price TEXT NOT NULL,
  size TEXT NOT NULL,
  stop_loss TEXT NOT NULL,
  take_profit TEXT NOT NULL,
  status TEXT NOT NULL,
  opening_order_id TEXT,
  closing_order_id TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  archived_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS job_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_name TEXT NOT NULL,
  worker_id TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT,
  ok INTEGER,
  error TEXT,
  meta_json TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_started_at ON job_runs(started_at DESC);`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
