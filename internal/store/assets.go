package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/domain"
)

// UpsertAsset creates or refreshes a registry row. Volume and
// last-scanned updates are last-writer-wins; the scanner is the only
// writer so no lease is needed here.
func (s *Store) UpsertAsset(ctx context.Context, a domain.Asset) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO assets (symbol, volume_24h, last_scanned, active)
VALUES (?,?,?,?)
ON CONFLICT(symbol) DO UPDATE SET
  volume_24h=excluded.volume_24h,
  last_scanned=excluded.last_scanned,
  active=excluded.active
`, a.Symbol, a.Volume24h.String(), fmtTime(a.LastScanned), boolToInt(a.Active))
	if err != nil {
		return fmt.Errorf("upsert asset %s: %w", a.Symbol, err)
	}
	return nil
}

// GetAsset returns one registry row.
func (s *Store) GetAsset(ctx context.Context, symbol string) (*domain.Asset, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT symbol, volume_24h, last_scanned, active FROM assets WHERE symbol=?
`, symbol)
	return scanAsset(row)
}

// ListActiveAssets returns all active registry rows.
func (s *Store) ListActiveAssets(ctx context.Context) ([]domain.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, volume_24h, last_scanned, active
FROM assets WHERE active=1 ORDER BY symbol
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssets(rows)
}

// ListAssetsDueForAnalysis returns active assets scanned within
// freshWindow whose latest signal is absent or older than
// reevalInterval.
func (s *Store) ListAssetsDueForAnalysis(ctx context.Context, freshWindow, reevalInterval time.Duration) ([]domain.Asset, error) {
	now := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT a.symbol, a.volume_24h, a.last_scanned, a.active
FROM assets a
LEFT JOIN (
  SELECT symbol, MAX(generated_at) AS latest FROM signals GROUP BY symbol
) s ON s.symbol = a.symbol
WHERE a.active=1
  AND a.last_scanned >= ?
  AND (s.latest IS NULL OR s.latest < ?)
ORDER BY a.symbol
`, fmtTime(now.Add(-freshWindow)), fmtTime(now.Add(-reevalInterval)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssets(rows)
}

// DeactivateAssetsNotScannedSince flips active=false on rows the
// scanner has not refreshed since the cutoff.
func (s *Store) DeactivateAssetsNotScannedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE assets SET active=0 WHERE active=1 AND last_scanned < ?
`, fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteInactiveAssetsBefore removes long-inactive registry rows.
// Maintenance only.
func (s *Store) DeleteInactiveAssetsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM assets WHERE active=0 AND last_scanned < ?
`, fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var (
		a           domain.Asset
		volume      string
		lastScanned string
		active      int
	)
	if err := row.Scan(&a.Symbol, &volume, &lastScanned, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a.Volume24h, _ = decimal.NewFromString(volume)
	a.LastScanned = parseTime(lastScanned)
	a.Active = active != 0
	return &a, nil
}

func collectAssets(rows *sql.Rows) ([]domain.Asset, error) {
	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
