package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/storage"
)

// ledgerDateLayout mirrors the vi-VN locale rendering used in the ledger UI.
const ledgerDateLayout = "15:04:05 2/1/2006"

// Engine owns the paper account. Orders are applied one at a time, fully
// validated before anything changes, and persisted before they become visible.
type Engine struct {
	kv          storage.KV
	initialCash decimal.Decimal
	logger      *logger.Logger
	now         func() time.Time

	mu           sync.Mutex
	cash         decimal.Decimal
	positions    []Position
	transactions []Transaction
}

func NewEngine(kv storage.KV, initialCash float64, log *logger.Logger) *Engine {
	if initialCash <= 0 {
		initialCash = DefaultInitialCash
	}
	initial := decimal.NewFromFloat(initialCash)
	return &Engine{
		kv:          kv,
		initialCash: initial,
		logger:      log,
		now:         time.Now,
		cash:        initial,
	}
}

// Load rehydrates the account from storage. Absent or malformed documents fall
// back to the endowment and empty collections individually.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cash = e.initialCash
	e.positions = nil
	e.transactions = nil

	raw, ok, err := e.kv.Get(ctx, KeyCashBalance)
	if err != nil {
		return fmt.Errorf("load cash balance: %w", err)
	}
	if ok {
		cash, perr := decimal.NewFromString(strings.TrimSpace(raw))
		if perr != nil || cash.IsNegative() {
			e.logger.Warn("malformed cash balance, using endowment", "value", raw)
		} else {
			e.cash = cash
		}
	}

	positions, err := loadDocument[Position](ctx, e, KeyPositions)
	if err != nil {
		return err
	}
	if verr := validatePositions(positions); verr != nil {
		e.logger.Warn("malformed account document, using empty", "key", KeyPositions, "error", verr)
		positions = nil
	}
	e.positions = positions

	transactions, err := loadDocument[Transaction](ctx, e, KeyTransactions)
	if err != nil {
		return err
	}
	e.transactions = transactions

	e.logger.Info("paper account loaded",
		"cash", e.cash.String(),
		"positions", len(e.positions),
		"transactions", len(e.transactions))
	return nil
}

// loadDocument decodes a stored JSON array. A document that fails to decode
// yields nil rather than whatever prefix was decoded before the error.
func loadDocument[T any](ctx context.Context, e *Engine, key string) ([]T, error) {
	raw, ok, err := e.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		e.logger.Warn("malformed account document, using empty", "key", key, "error", err)
		return nil, nil
	}
	return items, nil
}

// validatePositions enforces the holding invariants on stored data: one long
// position per symbol with positive quantity and entry. Symbols are upper-cased
// and a missing side defaults to Buy.
func validatePositions(positions []Position) error {
	seen := make(map[string]struct{}, len(positions))
	for i := range positions {
		p := &positions[i]
		p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
		if p.Side == "" {
			p.Side = SideBuy
		}
		switch {
		case p.Symbol == "":
			return fmt.Errorf("position %d: empty symbol", i)
		case p.Qty <= 0:
			return fmt.Errorf("position %s: non-positive qty %d", p.Symbol, p.Qty)
		case p.Entry <= 0:
			return fmt.Errorf("position %s: non-positive entry %v", p.Symbol, p.Entry)
		case p.Side != SideBuy:
			return fmt.Errorf("position %s: unsupported side %q", p.Symbol, p.Side)
		}
		if _, dup := seen[p.Symbol]; dup {
			return fmt.Errorf("position %s: duplicate symbol", p.Symbol)
		}
		seen[p.Symbol] = struct{}{}
	}
	return nil
}

// PlaceOrder executes the order in full or not at all. Rejections leave the
// account untouched; nothing is retried.
func (e *Engine) PlaceOrder(ctx context.Context, order Order) (Transaction, error) {
	order.Symbol = strings.ToUpper(strings.TrimSpace(order.Symbol))
	if err := validateOrder(order); err != nil {
		return Transaction{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	price := decimal.NewFromFloat(order.Price)
	qty := decimal.NewFromInt(order.Qty)
	value := price.Mul(qty)

	cash := e.cash
	positions := clonePositions(e.positions)
	idx := indexOf(positions, order.Symbol)

	tx := Transaction{
		ID:        uuid.NewString(),
		Symbol:    order.Symbol,
		Qty:       order.Qty,
		Price:     order.Price,
		Value:     value.InexactFloat64(),
		Status:    StatusMatched,
		CreatedAt: e.now(),
	}
	tx.Date = tx.CreatedAt.Format(ledgerDateLayout)

	switch order.Side {
	case SideBuy:
		if value.GreaterThan(cash) {
			return Transaction{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, value.String(), cash.String())
		}
		cash = cash.Sub(value)
		if idx >= 0 {
			p := &positions[idx]
			oldQty := decimal.NewFromInt(p.Qty)
			cost := decimal.NewFromFloat(p.Entry).Mul(oldQty).Add(value)
			p.Qty += order.Qty
			p.Entry = cost.Div(decimal.NewFromInt(p.Qty)).InexactFloat64()
		} else {
			positions = append(positions, Position{
				ID:     uuid.NewString(),
				Symbol: order.Symbol,
				Entry:  order.Price,
				Qty:    order.Qty,
				Side:   SideBuy,
			})
		}
		tx.Type = TxBuy

	case SideSell:
		if idx < 0 || positions[idx].Qty < order.Qty {
			held := int64(0)
			if idx >= 0 {
				held = positions[idx].Qty
			}
			return Transaction{}, fmt.Errorf("%w: sell %d %s, hold %d", ErrInsufficientHoldings, order.Qty, order.Symbol, held)
		}
		cash = cash.Add(value)
		entry := decimal.NewFromFloat(positions[idx].Entry)
		tx.RealizedPL = price.Sub(entry).Mul(qty).InexactFloat64()
		if positions[idx].Qty == order.Qty {
			positions = append(positions[:idx], positions[idx+1:]...)
		} else {
			positions[idx].Qty -= order.Qty
		}
		tx.Type = TxSell
	}

	transactions := make([]Transaction, 0, len(e.transactions)+1)
	transactions = append(transactions, tx)
	transactions = append(transactions, e.transactions...)

	if err := e.persist(ctx, cash, positions, transactions); err != nil {
		return Transaction{}, fmt.Errorf("persist account: %w", err)
	}

	e.cash = cash
	e.positions = positions
	e.transactions = transactions
	return tx, nil
}

func validateOrder(order Order) error {
	if order.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if order.Qty <= 0 {
		return fmt.Errorf("%w: qty must be positive", ErrInvalidOrder)
	}
	if order.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if order.Side != SideBuy && order.Side != SideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, order.Side)
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, cash decimal.Decimal, positions []Position, transactions []Transaction) error {
	if positions == nil {
		positions = []Position{}
	}
	if transactions == nil {
		transactions = []Transaction{}
	}
	positionsJSON, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	transactionsJSON, err := json.Marshal(transactions)
	if err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}
	return e.kv.SetMany(ctx, map[string]string{
		KeyCashBalance:  cash.String(),
		KeyPositions:    string(positionsJSON),
		KeyTransactions: string(transactionsJSON),
	})
}

// Reset restores the endowment and clears positions and the ledger.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, key := range []string{KeyCashBalance, KeyPositions, KeyTransactions} {
		if err := e.kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	e.cash = e.initialCash
	e.positions = nil
	e.transactions = nil
	return nil
}

// Account returns a copy of the current state.
func (e *Engine) Account() Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Account{
		CashBalance:  e.cash.InexactFloat64(),
		Positions:    clonePositions(e.positions),
		Transactions: append([]Transaction{}, e.transactions...),
	}
}

// Valuation projects the current account against the given quotes.
func (e *Engine) Valuation(quotes map[string]float64) Valuation {
	acc := e.Account()
	return Value(acc.CashBalance, acc.Positions, quotes)
}

func clonePositions(src []Position) []Position {
	out := make([]Position, len(src))
	copy(out, src)
	return out
}

func indexOf(positions []Position, symbol string) int {
	for i, p := range positions {
		if p.Symbol == symbol {
			return i
		}
	}
	return -1
}
