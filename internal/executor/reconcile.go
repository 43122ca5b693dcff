package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tradewatch/cryptobot/internal/domain"
	"github.com/tradewatch/cryptobot/internal/exchange"
	"github.com/tradewatch/cryptobot/pkg/logger"
	"github.com/tradewatch/cryptobot/pkg/retry"
)

// ReconcileReport summarizes one reconcile pass.
type ReconcileReport struct {
	OrdersChecked   int
	OrdersResolved  int
	OrphansResolved int
	ClosesStarted   int
	Failures        int
}

// Reconcile resolves every non-terminal order against the exchange's
// authoritative view and checks open positions for stop/target
// breaches. Per-item failures are logged and counted; the pass keeps
// going.
func (e *Executor) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport

	orders, err := e.store.ListNonTerminalOrders(ctx)
	if err != nil {
		return rep, err
	}
	rep.OrdersChecked = len(orders)
	for i := range orders {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		resolved, err := e.reconcileOrder(ctx, &orders[i])
		if err != nil {
			rep.Failures++
			logger.WithField("client_order_id", orders[i].ClientOrderID).
				Warnf("reconcile order: %v", err)
			continue
		}
		if resolved {
			rep.OrdersResolved++
		}
	}

	positions, err := e.store.ListNonTerminalPositions(ctx)
	if err != nil {
		return rep, err
	}
	for i := range positions {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		pos := &positions[i]
		if pos.Status != domain.PositionStatusOpen {
			resolved, err := e.resolveOrphan(ctx, pos)
			if err != nil {
				rep.Failures++
				logger.WithField("symbol", pos.Symbol).Warnf("orphan check: %v", err)
			} else if resolved {
				rep.OrphansResolved++
			}
			continue
		}
		reason, breach, err := e.checkBreach(ctx, pos)
		if err != nil {
			rep.Failures++
			logger.WithField("symbol", pos.Symbol).Warnf("breach check: %v", err)
			continue
		}
		if !breach {
			continue
		}
		if _, err := e.Close(ctx, pos.ID, reason); err != nil {
			if errors.Is(err, domain.ErrSkipped) {
				continue
			}
			rep.Failures++
			logger.WithField("symbol", pos.Symbol).Warnf("close on %s: %v", reason, err)
			continue
		}
		rep.ClosesStarted++
	}
	return rep, nil
}

// reconcileOrder fetches one order's authoritative state and applies it.
// Returns true when the order reached a terminal state.
func (e *Executor) reconcileOrder(ctx context.Context, order *domain.Order) (bool, error) {
	pos, err := e.store.GetPosition(ctx, order.PositionID)
	if err != nil {
		return false, err
	}
	opening := strings.HasPrefix(order.ClientOrderID, "pos-")
	resubmit := order.ID == ""

	var res exchange.OrderResult
	if resubmit {
		// The submission never returned an exchange id (timeout mid
		// submit). Resubmitting the same client order id is safe: the
		// venue deduplicates on it and hands back the existing order,
		// or creates it now if the original never arrived.
		res, err = e.submit(ctx, exchange.OrderRequest{
			Symbol:        order.Symbol,
			Side:          order.Side,
			Size:          order.RequestedSize,
			Price:         order.RequestedPrice,
			ClientOrderID: order.ClientOrderID,
		})
	} else {
		err = retry.Do(ctx, e.cfg.Retry, exchange.Retryable, func() error {
			var ferr error
			res, ferr = e.exchange.FetchOrder(ctx, order.ID, order.Symbol)
			return ferr
		})
	}
	if err != nil {
		if exchange.IsKind(err, exchange.KindNotFound) {
			// The venue never saw it. Dead on arrival; unwind.
			if uerr := e.store.UpdateOrderFromExchange(ctx, order.ClientOrderID, "",
				domain.OrderStatusCancelled, order.FilledSize, order.AvgFillPrice); uerr != nil {
				return false, uerr
			}
			return true, e.advancePosition(ctx, pos, exchange.OrderResult{Status: domain.OrderStatusCancelled}, opening)
		}
		if resubmit && exchange.IsKind(err, exchange.KindRejected) {
			// The venue refused the resubmission outright. Terminal for
			// this attempt; unwind the position the same way a rejected
			// order status would.
			if uerr := e.store.UpdateOrderFromExchange(ctx, order.ClientOrderID, "",
				domain.OrderStatusRejected, order.FilledSize, order.AvgFillPrice); uerr != nil {
				return false, uerr
			}
			return true, e.advancePosition(ctx, pos, exchange.OrderResult{Status: domain.OrderStatusRejected}, opening)
		}
		return false, err
	}

	if err := e.applyOrderResult(ctx, pos, order.ClientOrderID, res, opening); err != nil {
		return false, err
	}
	terminal := res.Status == domain.OrderStatusFilled ||
		res.Status == domain.OrderStatusCancelled ||
		res.Status == domain.OrderStatusRejected
	return terminal, nil
}

// resolveOrphan handles non-open live positions whose expected order
// row never made it into the store (a crash between the position write
// and the order write leaves exactly this shape). The order sweep can
// never touch them, so past the grace period a pending position is
// cancelled and a closing position is returned to open for the next
// breach check. The client order id is derived from the position id, so
// the lookup works even when the position row never recorded it.
func (e *Executor) resolveOrphan(ctx context.Context, pos *domain.Position) (bool, error) {
	grace := e.cfg.OrphanGrace
	if grace <= 0 {
		grace = e.cfg.TradeLeaseTTL
	}
	// Inside the grace window the owner may still be mid-operation.
	if time.Since(pos.UpdatedAt) < grace {
		return false, nil
	}

	clientID := openClientOrderID(pos.ID)
	if pos.Status == domain.PositionStatusClosing {
		clientID = closeClientOrderID(pos.ID)
	}
	if _, err := e.store.GetOrderByClientID(ctx, clientID); err == nil {
		// The order row exists; the order sweep owns this position.
		return false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	if pos.Status == domain.PositionStatusClosing {
		err := e.store.TransitionPosition(ctx, pos.ID,
			[]domain.PositionStatus{domain.PositionStatusClosing},
			domain.PositionStatusOpen, nil)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return false, err
		}
		if err == nil {
			logger.WithField("symbol", pos.Symbol).Warnf("closing position has no close order, reverting to open")
		}
		return err == nil, nil
	}

	err := e.store.TransitionPosition(ctx, pos.ID,
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusCancelled, nil)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return false, err
	}
	if err == nil {
		logger.WithField("symbol", pos.Symbol).Warnf("pending position has no opening order, cancelling")
	}
	return err == nil, nil
}

// checkBreach fetches the current price and tests the position's
// protective levels. The stop wins when both trip in one gap.
func (e *Executor) checkBreach(ctx context.Context, pos *domain.Position) (string, bool, error) {
	var ticker domain.Ticker
	err := retry.Do(ctx, e.cfg.Retry, exchange.Retryable, func() error {
		var ferr error
		ticker, ferr = e.exchange.FetchTicker(ctx, pos.Symbol)
		return ferr
	})
	if err != nil {
		return "", false, err
	}
	switch {
	case pos.StopBreached(ticker.Last):
		return "stop_loss", true, nil
	case pos.TargetReached(ticker.Last):
		return "take_profit", true, nil
	}
	return "", false, nil
}
