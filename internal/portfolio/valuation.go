package portfolio

import (
	"strings"
	"sync"
)

// Valuation is a projection of the account at a set of quotes. It is never stored.
type Valuation struct {
	CashBalance   float64 `json:"cashBalance"`
	InvestedValue float64 `json:"investedValue"`
	CostBasis     float64 `json:"costBasis"`
	UnrealizedPL  float64 `json:"unrealizedPL"`
	TotalEquity   float64 `json:"totalEquity"`
	// InvestedRatio is InvestedValue / TotalEquity in [0, 1]; 0 when equity is 0.
	InvestedRatio float64 `json:"investedRatio"`
}

// Value computes the valuation. A position without a positive quote is marked
// at its entry price.
func Value(cash float64, positions []Position, quotes map[string]float64) Valuation {
	v := Valuation{CashBalance: cash}
	for _, p := range positions {
		mark := p.Entry
		if q, ok := quotes[p.Symbol]; ok && q > 0 {
			mark = q
		}
		qty := float64(p.Qty)
		v.InvestedValue += mark * qty
		v.CostBasis += p.Entry * qty
	}
	v.UnrealizedPL = v.InvestedValue - v.CostBasis
	v.TotalEquity = cash + v.InvestedValue
	if v.TotalEquity > 0 {
		v.InvestedRatio = v.InvestedValue / v.TotalEquity
	}
	return v
}

// PriceBook holds the latest quote per symbol as pushed by the market feed.
// Updates merge into the existing map.
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[string]float64)}
}

func (b *PriceBook) Update(prices map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sym, price := range prices {
		if price <= 0 {
			continue
		}
		b.prices[strings.ToUpper(sym)] = price
	}
}

func (b *PriceBook) Snapshot() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float64, len(b.prices))
	for k, v := range b.prices {
		out[k] = v
	}
	return out
}
