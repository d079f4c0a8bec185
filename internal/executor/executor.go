package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/metrics"
	"github.com/upbo/upbotrading/internal/portfolio"
	"github.com/upbo/upbotrading/internal/storage"
)

type Notifier interface {
	NotifyOrder(tx portfolio.Transaction, cash float64)
	NotifyError(context string, err error)
}

// SnapshotStore persists valuation history. Optional.
type SnapshotStore interface {
	SaveSnapshot(snapshot *storage.PortfolioSnapshot) error
}

// Executor is the single entry point for user orders. It applies them to the
// engine and fans the outcome out to metrics, notifications and snapshots.
type Executor struct {
	engine    *portfolio.Engine
	prices    *portfolio.PriceBook
	snapshots SnapshotStore
	notifier  Notifier
	logger    *logger.Logger
}

func NewExecutor(
	engine *portfolio.Engine,
	prices *portfolio.PriceBook,
	snapshots SnapshotStore,
	notifier Notifier,
	log *logger.Logger,
) *Executor {
	return &Executor{
		engine:    engine,
		prices:    prices,
		snapshots: snapshots,
		notifier:  notifier,
		logger:    log.With("component", "executor"),
	}
}

// Submit places the order. Validation failures are returned as-is and never
// retried; the account is unchanged in that case.
func (e *Executor) Submit(ctx context.Context, order portfolio.Order) (portfolio.Transaction, error) {
	tx, err := e.engine.PlaceOrder(ctx, order)
	if err != nil {
		reason := RejectionReason(err)
		metrics.OrderRejections.WithLabelValues(reason).Inc()
		if reason == "storage" {
			e.logger.Error("place order", "symbol", order.Symbol, "side", order.Side, "error", err)
			e.notifier.NotifyError(fmt.Sprintf("%s %s", order.Side, order.Symbol), err)
		} else {
			e.logger.Info("order rejected", "symbol", order.Symbol, "side", order.Side,
				"qty", order.Qty, "price", order.Price, "reason", reason)
		}
		return portfolio.Transaction{}, err
	}

	metrics.OrdersTotal.WithLabelValues(string(order.Side)).Inc()

	val := e.Revalue()
	e.logger.Info("order matched",
		"id", tx.ID, "symbol", tx.Symbol, "type", tx.Type,
		"qty", tx.Qty, "price", tx.Price, "value", tx.Value,
		"realized_pl", tx.RealizedPL, "cash", val.CashBalance)

	e.notifier.NotifyOrder(tx, val.CashBalance)
	e.saveSnapshot(val)
	return tx, nil
}

func (e *Executor) Account() portfolio.Account {
	return e.engine.Account()
}

// Snapshot reads the account once and values that copy, so cash and
// valuation always describe the same state.
func (e *Executor) Snapshot() (portfolio.Account, portfolio.Valuation) {
	acc := e.engine.Account()
	val := portfolio.Value(acc.CashBalance, acc.Positions, e.prices.Snapshot())
	metrics.TotalEquity.Set(val.TotalEquity)
	return acc, val
}

// Revalue marks the account to the latest pushed prices and exports equity.
func (e *Executor) Revalue() portfolio.Valuation {
	_, val := e.Snapshot()
	return val
}

func (e *Executor) saveSnapshot(val portfolio.Valuation) {
	if e.snapshots == nil {
		return
	}
	positions := e.engine.Account().Positions
	positionsJSON, err := json.Marshal(positions)
	if err != nil {
		positionsJSON = []byte("[]")
	}
	snapshot := &storage.PortfolioSnapshot{
		Cash:           val.CashBalance,
		InvestedValue:  val.InvestedValue,
		UnrealizedPL:   val.UnrealizedPL,
		TotalEquity:    val.TotalEquity,
		PositionsCount: len(positions),
		PositionsJSON:  string(positionsJSON),
	}
	if err := e.snapshots.SaveSnapshot(snapshot); err != nil {
		e.logger.Error("save portfolio snapshot", "error", err)
	}
}

// RejectionReason maps an order error to a stable label used in metrics and API
// responses.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, portfolio.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, portfolio.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, portfolio.ErrInvalidOrder):
		return "invalid_order"
	default:
		return "storage"
	}
}
