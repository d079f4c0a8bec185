package portfolio

import (
	"errors"
	"time"
)

// DefaultInitialCash is the paper-trading endowment of a fresh account (VND).
const DefaultInitialCash = 100_000_000

// Storage keys of the persisted account documents.
const (
	KeyCashBalance  = "upbot_cash_balance"
	KeyPositions    = "upbot_positions"
	KeyTransactions = "upbot_transactions"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrInvalidOrder         = errors.New("invalid order")
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

type TxType string

const (
	TxBuy  TxType = "BUY"
	TxSell TxType = "SELL"
)

// StatusMatched is the only ledger status: every accepted order fills in full.
const StatusMatched = "Matched"

type Order struct {
	Symbol string  `json:"symbol"`
	Qty    int64   `json:"qty"`
	Price  float64 `json:"price"`
	Side   Side    `json:"side"`
}

// Position is a long holding of one symbol at a volume-weighted entry price.
type Position struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Entry  float64 `json:"entry"`
	Qty    int64   `json:"qty"`
	Side   Side    `json:"side"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	Symbol    string    `json:"symbol"`
	Type      TxType    `json:"type"`
	Qty       int64     `json:"qty"`
	Price     float64   `json:"price"`
	Value     float64   `json:"value"`
	// RealizedPL is set on sells: (price - entry) * qty.
	RealizedPL float64 `json:"realizedPL,omitempty"`
	Status     string  `json:"status"`
}

// Account is a point-in-time copy of the paper account.
type Account struct {
	CashBalance  float64       `json:"cashBalance"`
	Positions    []Position    `json:"positions"`
	Transactions []Transaction `json:"transactions"`
}
