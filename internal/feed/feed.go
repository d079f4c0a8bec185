// Package feed polls live quotes for a fixed instrument universe and pushes the
// resulting price map to subscribers.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upbo/upbotrading/internal/ai"
	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/metrics"
)

const DefaultInterval = 30 * time.Second

// QuoteSource is satisfied by *ai.Gateway. It never fails; an unusable poll
// comes back with no prices.
type QuoteSource interface {
	LiveQuotes(ctx context.Context, symbols []string) ai.LiveQuotes
}

// Quote is one row of the quote table.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Board     Board     `json:"board"`
	Ref       float64   `json:"ref"`
	Ceil      float64   `json:"ceil"`
	Floor     float64   `json:"floor"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`    // percent vs ref
	AbsChange float64   `json:"absChange"` // price - ref
	MarketCap string    `json:"marketCap,omitempty"`
	Direction string    `json:"direction,omitempty"` // up or down on the last change
	UpdatedAt time.Time `json:"updatedAt"`
}

type Options struct {
	Interval time.Duration
	// Visible reports whether anyone is watching; ticks are skipped when false.
	Visible func() bool
}

type Feed struct {
	source  QuoteSource
	symbols []string
	opts    Options
	logger  *logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	table   []Quote
	index   map[string]int
	sources []ai.Source
	paused  bool
	// live holds symbols the provider has priced at least once; seed prices
	// from the universe are display-only and never forwarded.
	live    map[string]struct{}

	subMu   sync.RWMutex
	nextSub int
	subs    map[int]func(map[string]float64)

	syncMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(source QuoteSource, universe []Instrument, opts Options, log *logger.Logger) *Feed {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Visible == nil {
		opts.Visible = func() bool { return true }
	}

	f := &Feed{
		source:  source,
		opts:    opts,
		logger:  log.With("component", "feed"),
		now:     time.Now,
		index:   make(map[string]int, len(universe)),
		live:    make(map[string]struct{}, len(universe)),
		sources: []ai.Source{},
		subs:    make(map[int]func(map[string]float64)),
	}
	for i, inst := range universe {
		f.symbols = append(f.symbols, inst.Symbol)
		f.index[inst.Symbol] = i
		f.table = append(f.table, Quote{
			Symbol:    inst.Symbol,
			Name:      inst.Name,
			Board:     inst.Board,
			Ref:       inst.Ref,
			Ceil:      inst.Ceil,
			Floor:     inst.Floor,
			Price:     inst.Price,
			Change:    pctChange(inst.Ref, inst.Price),
			AbsChange: inst.Price - inst.Ref,
			MarketCap: inst.MarketCap,
		})
	}
	return f
}

// Start launches the polling loop. The first refresh runs immediately.
func (f *Feed) Start(ctx context.Context) {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	if f.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.done)
}

// Stop cancels the loop and waits for it to exit.
func (f *Feed) Stop() {
	f.runMu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (f *Feed) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
	f.logger.Info("market feed paused")
}

func (f *Feed) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
	f.logger.Info("market feed resumed")
}

func (f *Feed) Paused() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.paused
}

func (f *Feed) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	f.logger.Info("market feed started", "interval", f.opts.Interval.String(), "symbols", len(f.symbols))
	f.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("market feed stopped")
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Feed) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("panic in market feed cycle", "panic", fmt.Sprint(r))
		}
	}()

	if f.Paused() || !f.opts.Visible() {
		metrics.FeedPolls.WithLabelValues("skipped").Inc()
		f.logger.Debug("market feed not visible, skipping poll")
		return
	}
	f.Sync(ctx)
}

// Sync runs one refresh now, regardless of visibility. A poll that yields no
// prices leaves the table as it was and notifies nobody.
func (f *Feed) Sync(ctx context.Context) {
	f.syncMu.Lock()
	defer f.syncMu.Unlock()

	result := f.source.LiveQuotes(ctx, f.symbols)
	if ctx.Err() != nil {
		return
	}
	if len(result.Prices) == 0 {
		metrics.FeedPolls.WithLabelValues("empty").Inc()
		f.logger.Debug("market feed poll returned no prices")
		return
	}

	changed := f.apply(result)
	if changed > 0 {
		metrics.FeedPolls.WithLabelValues("updated").Inc()
		f.logger.Debug("quote table updated", "changed", changed)
	} else {
		metrics.FeedPolls.WithLabelValues("unchanged").Inc()
	}

	if prices := f.priceMap(); len(prices) > 0 {
		f.publish(prices)
	}
}

func (f *Feed) apply(result ai.LiveQuotes) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	changed := 0
	for sym, q := range result.Prices {
		i, ok := f.index[sym]
		if !ok {
			continue
		}
		row := &f.table[i]
		if q.Price > 0 {
			f.live[sym] = struct{}{}
		}
		switch {
		case q.Price > 0 && q.Price != row.Price:
			if q.Price > row.Price {
				row.Direction = "up"
			} else {
				row.Direction = "down"
			}
			row.Price = q.Price
			row.AbsChange = q.Price - row.Ref
			row.Change = pctChange(row.Ref, q.Price)
			if q.MarketCap != "" {
				row.MarketCap = q.MarketCap
			}
			row.UpdatedAt = now
			changed++
		case q.MarketCap != "" && q.MarketCap != row.MarketCap:
			row.MarketCap = q.MarketCap
			row.UpdatedAt = now
			changed++
		}
	}
	if len(result.Sources) > 0 {
		f.sources = append([]ai.Source(nil), result.Sources...)
	}
	return changed
}

// priceMap returns the latest provider price of every live symbol.
func (f *Feed) priceMap() map[string]float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]float64, len(f.live))
	for sym := range f.live {
		out[sym] = f.table[f.index[sym]].Price
	}
	return out
}

// Subscribe registers fn for every price map the feed forwards and returns a
// function that removes it.
func (f *Feed) Subscribe(fn func(map[string]float64)) func() {
	f.subMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.subMu.Unlock()

	return func() {
		f.subMu.Lock()
		delete(f.subs, id)
		f.subMu.Unlock()
	}
}

func (f *Feed) publish(prices map[string]float64) {
	f.subMu.RLock()
	subs := make([]func(map[string]float64), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.subMu.RUnlock()

	for _, fn := range subs {
		cp := make(map[string]float64, len(prices))
		for k, v := range prices {
			cp[k] = v
		}
		fn(cp)
	}
}

// Quotes returns a copy of the quote table in universe order.
func (f *Feed) Quotes() []Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Quote(nil), f.table...)
}

func (f *Feed) Sources() []ai.Source {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]ai.Source{}, f.sources...)
}

func pctChange(ref, price float64) float64 {
	if ref == 0 {
		return 0
	}
	return (price - ref) / ref * 100
}
