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

// CreateOrder records a submitted order. The client order id is the
// primary key, so a retried insert with the same idempotency token
// cannot produce a second row. The foreign key on position_id
// guarantees every order references an existing position.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	o.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO orders (client_order_id, exchange_order_id, position_id, symbol, side,
  requested_size, requested_price, filled_size, avg_fill_price, status, last_reconciled, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
`, o.ClientOrderID, nullStr(o.ID), o.PositionID, o.Symbol, string(o.Side),
		o.RequestedSize.String(), o.RequestedPrice.String(),
		o.FilledSize.String(), o.AvgFillPrice.String(), string(o.Status),
		nil, fmtTime(o.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("create order %s: %w", o.ClientOrderID, err)
	}
	return nil
}

// GetOrderByClientID returns an order by its idempotency token.
func (s *Store) GetOrderByClientID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, selectOrder+` WHERE client_order_id=?`, clientOrderID)
	return scanOrder(row)
}

// ListNonTerminalOrders returns every order reconcile still needs to
// resolve.
func (s *Store) ListNonTerminalOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, selectOrder+`
 WHERE status IN ('submitted','partially_filled') ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListOrdersForPosition returns all orders belonging to a position.
func (s *Store) ListOrdersForPosition(ctx context.Context, positionID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, selectOrder+` WHERE position_id=? ORDER BY created_at`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// UpdateOrderFromExchange records the authoritative state observed at
// submission time or during reconcile.
func (s *Store) UpdateOrderFromExchange(ctx context.Context, clientOrderID string, exchangeOrderID string, status domain.OrderStatus, filled, avgPrice decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE orders
SET exchange_order_id=COALESCE(?, exchange_order_id),
    status=?, filled_size=?, avg_fill_price=?, last_reconciled=?
WHERE client_order_id=?
`, nullStr(exchangeOrderID), string(status), filled.String(), avgPrice.String(),
		fmtTime(time.Now()), clientOrderID)
	if err != nil {
		return fmt.Errorf("update order %s: %w", clientOrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const selectOrder = `
SELECT client_order_id, exchange_order_id, position_id, symbol, side,
  requested_size, requested_price, filled_size, avg_fill_price, status, last_reconciled, created_at
FROM orders`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o              domain.Order
		exchangeID     sql.NullString
		side           string
		requestedSize  string
		requestedPrice string
		filledSize     string
		avgFillPrice   string
		status         string
		lastReconciled sql.NullString
		createdAt      string
	)
	if err := row.Scan(&o.ClientOrderID, &exchangeID, &o.PositionID, &o.Symbol, &side,
		&requestedSize, &requestedPrice, &filledSize, &avgFillPrice, &status,
		&lastReconciled, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	o.ID = exchangeID.String
	o.Side = domain.Side(side)
	o.RequestedSize, _ = decimal.NewFromString(requestedSize)
	o.RequestedPrice, _ = decimal.NewFromString(requestedPrice)
	o.FilledSize, _ = decimal.NewFromString(filledSize)
	o.AvgFillPrice, _ = decimal.NewFromString(avgFillPrice)
	o.Status = domain.OrderStatus(status)
	if lastReconciled.Valid {
		o.LastReconciled = parseTime(lastReconciled.String)
	}
	o.CreatedAt = parseTime(createdAt)
	return &o, nil
}
