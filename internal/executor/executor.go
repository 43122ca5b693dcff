package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/coordinator"
	"github.com/tradewatch/cryptobot/internal/domain"
	"github.com/tradewatch/cryptobot/internal/exchange"
	"github.com/tradewatch/cryptobot/internal/store"
	"github.com/tradewatch/cryptobot/pkg/logger"
	"github.com/tradewatch/cryptobot/pkg/retry"
)

// Executor drives the order lifecycle against the exchange and keeps
// the store reconciled with the exchange's authoritative status. It is
// the only writer of order rows.
//
// Other workers observe the trade lease, not the order call, to avoid
// duplicate entries: Open releases the lease only once the position row
// reflects open or a terminal state.
type Executor struct {
	store    *store.Store
	coord    *coordinator.Coordinator
	exchange exchange.Exchange
	cfg      Config
	workerID string
}

// Config is the executor's slice of the configuration surface.
type Config struct {
	TradeLeaseTTL time.Duration
	MinFillRatio  decimal.Decimal
	// OrphanGrace bounds how long a live position may sit without its
	// expected order row before reconcile unwinds it. Zero means
	// TradeLeaseTTL.
	OrphanGrace time.Duration
	Retry       retry.Config
}

// New builds an executor.
func New(st *store.Store, coord *coordinator.Coordinator, ex exchange.Exchange, cfg Config, workerID string) *Executor {
	return &Executor{store: st, coord: coord, exchange: ex, cfg: cfg, workerID: workerID}
}

// openClientOrderID derives the idempotency token for a position's
// opening order. Retried submissions reuse it, so the exchange (or
// reconcile) deduplicates.
func openClientOrderID(positionID string) string { return "pos-" + positionID }

// closeClientOrderID derives the token for the closing order.
func closeClientOrderID(positionID string) string { return "cls-" + positionID }

// Open converts an approved decision into a pending position and an
// exchange order. Returns domain.ErrSkipped when the trade lease is
// busy or another live position appeared since the risk check.
func (e *Executor) Open(ctx context.Context, dec domain.Decision) (*domain.Position, error) {
	if !dec.Act {
		return nil, fmt.Errorf("decision rejected (%s): %w", dec.Reason, domain.ErrSkipped)
	}

	lease, err := e.coord.Acquire(domain.TradeLeaseKey(dec.Symbol), e.workerID, e.cfg.TradeLeaseTTL)
	if err != nil {
		if errors.Is(err, domain.ErrBusy) {
			return nil, fmt.Errorf("trade lease busy for %s: %w", dec.Symbol, domain.ErrSkipped)
		}
		return nil, err
	}
	defer func() {
		if err := e.coord.Release(lease); err != nil {
			logger.Warnf("release trade lease %s: %v", lease.Key, err)
		}
	}()

	// The risk check ran outside the lease; re-check under it. A lease
	// that expired and was re-acquired between the two could otherwise
	// let a duplicate through.
	if _, err := e.store.GetNonTerminalPosition(ctx, dec.Symbol); err == nil {
		return nil, fmt.Errorf("live position exists for %s: %w", dec.Symbol, domain.ErrSkipped)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	pos := &domain.Position{
		ID:         uuid.NewString(),
		Symbol:     dec.Symbol,
		Direction:  dec.Direction,
		Size:       dec.Size,
		StopLoss:   dec.Stop,
		TakeProfit: dec.Target,
		Status:     domain.PositionStatusPending,
	}
	if err := e.store.CreatePosition(ctx, pos); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// The live-position unique index caught a race the re-check
			// missed.
			return nil, fmt.Errorf("live position exists for %s: %w", dec.Symbol, domain.ErrSkipped)
		}
		return nil, err
	}

	clientID := openClientOrderID(pos.ID)
	order := &domain.Order{
		ClientOrderID: clientID,
		PositionID:    pos.ID,
		Symbol:        pos.Symbol,
		Side:          domain.SideForEntry(pos.Direction),
		RequestedSize: pos.Size,
		Status:        domain.OrderStatusSubmitted,
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := e.store.TransitionPosition(ctx, pos.ID,
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusPending,
		&store.PositionUpdate{OpeningOrderID: &clientID}); err != nil {
		return nil, err
	}
	pos.OpeningOrderID = clientID

	res, err := e.submit(ctx, exchange.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          order.Side,
		Size:          pos.Size,
		ClientOrderID: clientID,
	})
	if err != nil {
		if exchange.IsKind(err, exchange.KindRejected) {
			// Terminal for this attempt: mark everything cancelled.
			_ = e.store.UpdateOrderFromExchange(ctx, clientID, "", domain.OrderStatusRejected, decimal.Zero, decimal.Zero)
			_ = e.store.TransitionPosition(ctx, pos.ID,
				[]domain.PositionStatus{domain.PositionStatusPending},
				domain.PositionStatusCancelled, nil)
			pos.Status = domain.PositionStatusCancelled
			logger.WithField("symbol", pos.Symbol).Warnf("order rejected: %v", err)
			return pos, nil
		}
		// Transient failure after retries. The order may or may not
		// exist on the exchange; Position(pending) + Order(submitted)
		// stay behind for reconcile to resolve with the same token.
		logger.WithField("symbol", pos.Symbol).Warnf("submit unresolved, leaving to reconcile: %v", err)
		return pos, nil
	}

	if err := e.applyOrderResult(ctx, pos, clientID, res, true); err != nil {
		return nil, err
	}
	return e.store.GetPosition(ctx, pos.ID)
}

// Close submits the closing order for a live position. Reason is
// recorded in logs only; the position row tracks status.
func (e *Executor) Close(ctx context.Context, positionID, reason string) (*domain.Position, error) {
	pos, err := e.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if pos.Status != domain.PositionStatusOpen {
		return nil, fmt.Errorf("position %s is %s: %w", positionID, pos.Status, domain.ErrSkipped)
	}

	lease, err := e.coord.Acquire(domain.TradeLeaseKey(pos.Symbol), e.workerID, e.cfg.TradeLeaseTTL)
	if err != nil {
		if errors.Is(err, domain.ErrBusy) {
			return nil, fmt.Errorf("trade lease busy for %s: %w", pos.Symbol, domain.ErrSkipped)
		}
		return nil, err
	}
	defer func() {
		if err := e.coord.Release(lease); err != nil {
			logger.Warnf("release trade lease %s: %v", lease.Key, err)
		}
	}()

	clientID := closeClientOrderID(pos.ID)
	if err := e.store.TransitionPosition(ctx, pos.ID,
		[]domain.PositionStatus{domain.PositionStatusOpen},
		domain.PositionStatusClosing,
		&store.PositionUpdate{ClosingOrderID: &clientID}); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("position %s no longer open: %w", positionID, domain.ErrSkipped)
		}
		return nil, err
	}

	order := &domain.Order{
		ClientOrderID: clientID,
		PositionID:    pos.ID,
		Symbol:        pos.Symbol,
		Side:          domain.SideForExit(pos.Direction),
		RequestedSize: pos.Size,
		Status:        domain.OrderStatusSubmitted,
	}
	if err := e.store.CreateOrder(ctx, order); err != nil && !errors.Is(err, domain.ErrConflict) {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"symbol": pos.Symbol,
		"reason": reason,
	}).Infof("closing position")

	res, err := e.submit(ctx, exchange.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          order.Side,
		Size:          pos.Size,
		ClientOrderID: clientID,
	})
	if err != nil {
		if exchange.IsKind(err, exchange.KindRejected) {
			// The venue refused the close. The position is still live;
			// move it back to open so the next breach check retries.
			_ = e.store.UpdateOrderFromExchange(ctx, clientID, "", domain.OrderStatusRejected, decimal.Zero, decimal.Zero)
			if terr := e.store.TransitionPosition(ctx, pos.ID,
				[]domain.PositionStatus{domain.PositionStatusClosing},
				domain.PositionStatusOpen, nil); terr != nil && !errors.Is(terr, domain.ErrConflict) {
				return nil, terr
			}
			logger.WithField("symbol", pos.Symbol).Warnf("close rejected: %v", err)
			return e.store.GetPosition(ctx, pos.ID)
		}
		// Position(closing) + Order(submitted) are reconcile's problem
		// now.
		logger.WithField("symbol", pos.Symbol).Warnf("close submit unresolved: %v", err)
		return e.store.GetPosition(ctx, pos.ID)
	}

	if err := e.applyOrderResult(ctx, pos, clientID, res, false); err != nil {
		return nil, err
	}
	return e.store.GetPosition(ctx, pos.ID)
}

// submit wraps PlaceOrder in bounded retry. Every attempt reuses the
// same client order id, so a timeout-then-retry cannot double-execute.
func (e *Executor) submit(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	var res exchange.OrderResult
	err := retry.Do(ctx, e.cfg.Retry, exchange.Retryable, func() error {
		var perr error
		res, perr = e.exchange.PlaceOrder(ctx, req)
		return perr
	})
	return res, err
}

// applyOrderResult records the venue's view of an order and advances
// the owning position when the result is conclusive.
func (e *Executor) applyOrderResult(ctx context.Context, pos *domain.Position, clientID string, res exchange.OrderResult, opening bool) error {
	if err := e.store.UpdateOrderFromExchange(ctx, clientID, res.OrderID, res.Status, res.FilledSize, res.AvgFillPrice); err != nil {
		return err
	}
	return e.advancePosition(ctx, pos, res, opening)
}

// advancePosition applies the position state machine for one order
// observation:
//
//	opening filled (>= min fill ratio) -> open
//	opening cancelled/rejected        -> cancelled
//	closing filled                    -> closed
func (e *Executor) advancePosition(ctx context.Context, pos *domain.Position, res exchange.OrderResult, opening bool) error {
	filledEnough := res.Status == domain.OrderStatusFilled
	if !filledEnough && res.Status == domain.OrderStatusPartiallyFilled && !pos.Size.IsZero() {
		filledEnough = res.FilledSize.Div(pos.Size).GreaterThanOrEqual(e.cfg.MinFillRatio)
	}

	if opening {
		switch {
		case filledEnough:
			entry := res.AvgFillPrice
			upd := &store.PositionUpdate{EntryPrice: &entry}
			if res.FilledSize.LessThan(pos.Size) && !res.FilledSize.IsZero() {
				upd.Size = &res.FilledSize
			}
			err := e.store.TransitionPosition(ctx, pos.ID,
				[]domain.PositionStatus{domain.PositionStatusPending},
				domain.PositionStatusOpen, upd)
			if err != nil && !errors.Is(err, domain.ErrConflict) {
				return err
			}
			if err == nil {
				logger.WithFields(map[string]interface{}{
					"symbol": pos.Symbol,
					"entry":  entry,
					"size":   res.FilledSize,
				}).Infof("position opened")
			}
		case res.Status == domain.OrderStatusCancelled || res.Status == domain.OrderStatusRejected:
			err := e.store.TransitionPosition(ctx, pos.ID,
				[]domain.PositionStatus{domain.PositionStatusPending},
				domain.PositionStatusCancelled, nil)
			if err != nil && !errors.Is(err, domain.ErrConflict) {
				return err
			}
		}
		return nil
	}

	switch {
	case filledEnough:
		err := e.store.TransitionPosition(ctx, pos.ID,
			[]domain.PositionStatus{domain.PositionStatusClosing},
			domain.PositionStatusClosed, nil)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if err == nil {
			logger.WithField("symbol", pos.Symbol).Infof("position closed")
		}
	case res.Status == domain.OrderStatusCancelled || res.Status == domain.OrderStatusRejected:
		// The close attempt died; the position is still live. Move it
		// back to open so the next breach check retries.
		err := e.store.TransitionPosition(ctx, pos.ID,
			[]domain.PositionStatus{domain.PositionStatusClosing},
			domain.PositionStatusOpen, nil)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}
	return nil
}
