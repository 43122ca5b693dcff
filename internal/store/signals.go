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

// AppendSignal inserts a new immutable signal row. Later signals for
// the same symbol supersede earlier ones; nothing is ever overwritten.
func (s *Store) AppendSignal(ctx context.Context, sig *domain.Signal) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO signals (symbol, direction, confidence, suggested_stop, suggested_target, generated_at)
VALUES (?,?,?,?,?,?)
`, sig.Symbol, string(sig.Direction), sig.Confidence.String(),
		sig.SuggestedStop.String(), sig.SuggestedTarget.String(), fmtTime(sig.GeneratedAt))
	if err != nil {
		return fmt.Errorf("append signal %s: %w", sig.Symbol, err)
	}
	sig.ID, _ = res.LastInsertId()
	return nil
}

// LatestSignal returns the most recent signal for a symbol.
func (s *Store) LatestSignal(ctx context.Context, symbol string) (*domain.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, symbol, direction, confidence, suggested_stop, suggested_target, generated_at
FROM signals WHERE symbol=? ORDER BY generated_at DESC, id DESC LIMIT 1
`, symbol)
	return scanSignal(row)
}

// DeleteSignalsBefore purges signal history older than the cutoff.
// Maintenance only.
func (s *Store) DeleteSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM signals WHERE generated_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSignal(row rowScanner) (*domain.Signal, error) {
	var (
		sig         domain.Signal
		direction   string
		confidence  string
		stop        string
		target      string
		generatedAt string
	)
	if err := row.Scan(&sig.ID, &sig.Symbol, &direction, &confidence, &stop, &target, &generatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	sig.Direction = domain.Direction(direction)
	sig.Confidence, _ = decimal.NewFromString(confidence)
	sig.SuggestedStop, _ = decimal.NewFromString(stop)
	sig.SuggestedTarget, _ = decimal.NewFromString(target)
	sig.GeneratedAt = parseTime(generatedAt)
	return &sig, nil
}
