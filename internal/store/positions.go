package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/domain"
)

// CreatePosition inserts a new position. The partial unique index on
// live positions makes a second non-terminal position for the same
// symbol fail; that failure is surfaced as ErrConflict so callers
// treat it as a race, not a bug.
func (s *Store) CreatePosition(ctx context.Context, p *domain.Position) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
INSERT INTO positions (id, symbol, direction, entry_price, size, stop_loss, take_profit,
  status, opening_order_id, closing_order_id, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
`, p.ID, p.Symbol, string(p.Direction), p.EntryPrice.String(), p.Size.String(),
		p.StopLoss.String(), p.TakeProfit.String(), string(p.Status),
		nullStr(p.OpeningOrderID), nullStr(p.ClosingOrderID), fmtTime(now), fmtTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("create position %s: %w", p.Symbol, err)
	}
	return nil
}

// GetPosition returns one position by id.
func (s *Store) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, selectPosition+` WHERE id=?`, id)
	return scanPosition(row)
}

// GetNonTerminalPosition returns the live position for a symbol, or
// ErrNotFound when the symbol has none.
func (s *Store) GetNonTerminalPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, selectPosition+`
 WHERE symbol=? AND status IN ('pending','open','closing')`, symbol)
	return scanPosition(row)
}

// CountNonTerminalPositions returns the number of live positions.
func (s *Store) CountNonTerminalPositions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM positions WHERE status IN ('pending','open','closing')`).Scan(&n)
	return n, err
}

// ListNonTerminalPositions returns all live positions.
func (s *Store) ListNonTerminalPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, selectPosition+`
 WHERE status IN ('pending','open','closing') ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// TotalOpenExposure sums entry_price*size over live positions.
func (s *Store) TotalOpenExposure(ctx context.Context) (decimal.Decimal, error) {
	positions, err := s.ListNonTerminalPositions(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range positions {
		total = total.Add(positions[i].ExposureValue())
	}
	return total, nil
}

// PositionUpdate carries the optional field mutations applied together
// with a status transition.
type PositionUpdate struct {
	EntryPrice     *decimal.Decimal
	Size           *decimal.Decimal
	StopLoss       *decimal.Decimal
	OpeningOrderID *string
	ClosingOrderID *string
}

// TransitionPosition moves a position from one of the given statuses to
// the target status, applying upd in the same statement. The UPDATE is
// guarded by the current status, so it acts as a compare-and-set: if
// the row is not in an expected status (another worker got there
// first, or a lease expired mid-flight), ErrConflict is returned and
// nothing changes.
func (s *Store) TransitionPosition(ctx context.Context, id string, from []domain.PositionStatus, to domain.PositionStatus, upd *PositionUpdate) error {
	sets := []string{"status=?", "updated_at=?"}
	args := []any{string(to), fmtTime(time.Now())}
	if upd != nil {
		if upd.EntryPrice != nil {
			sets = append(sets, "entry_price=?")
			args = append(args, upd.EntryPrice.String())
		}
		if upd.Size != nil {
			sets = append(sets, "size=?")
			args = append(args, upd.Size.String())
		}
		if upd.StopLoss != nil {
			sets = append(sets, "stop_loss=?")
			args = append(args, upd.StopLoss.String())
		}
		if upd.OpeningOrderID != nil {
			sets = append(sets, "opening_order_id=?")
			args = append(args, *upd.OpeningOrderID)
		}
		if upd.ClosingOrderID != nil {
			sets = append(sets, "closing_order_id=?")
			args = append(args, *upd.ClosingOrderID)
		}
	}

	placeholders := make([]string, len(from))
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE positions SET %s WHERE status IN (%s) AND id=?`,
		strings.Join(sets, ", "), strings.Join(placeholders, ","))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("transition position %s -> %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ArchiveTerminalPositionsBefore moves closed/cancelled positions older
// than the cutoff into positions_archive. Maintenance only.
func (s *Store) ArchiveTerminalPositionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO positions_archive
SELECT id, symbol, direction, entry_price, size, stop_loss, take_profit,
  status, opening_order_id, closing_order_id, created_at, updated_at, ?
FROM positions
WHERE status IN ('closed','cancelled') AND updated_at < ?
`, fmtTime(time.Now()), fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	moved, _ := res.RowsAffected()

	// Orders keep a foreign key onto positions, so the archive keeps the
	// original rows' ids; only the live table is pruned.
	if _, err := tx.ExecContext(ctx, `
DELETE FROM orders WHERE position_id IN (
  SELECT id FROM positions WHERE status IN ('closed','cancelled') AND updated_at < ?
)`, fmtTime(cutoff)); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM positions WHERE status IN ('closed','cancelled') AND updated_at < ?
`, fmtTime(cutoff)); err != nil {
		return 0, err
	}
	return moved, tx.Commit()
}

const selectPosition = `
SELECT id, symbol, direction, entry_price, size, stop_loss, take_profit,
  status, opening_order_id, closing_order_id, created_at, updated_at
FROM positions`

func scanPosition(row rowScanner) (*domain.Position, error) {
	var (
		p          domain.Position
		direction  string
		entryPrice string
		size       string
		stopLoss   string
		takeProfit string
		status     string
		openingID  sql.NullString
		closingID  sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&p.ID, &p.Symbol, &direction, &entryPrice, &size, &stopLoss,
		&takeProfit, &status, &openingID, &closingID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Direction = domain.Direction(direction)
	p.EntryPrice, _ = decimal.NewFromString(entryPrice)
	p.Size, _ = decimal.NewFromString(size)
	p.StopLoss, _ = decimal.NewFromString(stopLoss)
	p.TakeProfit, _ = decimal.NewFromString(takeProfit)
	p.Status = domain.PositionStatus(status)
	p.OpeningOrderID = openingID.String
	p.ClosingOrderID = closingID.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
