package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ttlInsight  = 4 * time.Hour
	ttlQuotes   = 2 * time.Minute
	ttlMarket   = 30 * time.Minute
	ttlAnalysis = time.Hour
	ttlStrategy = 24 * time.Hour
)

// MarketSummary returns a short recap of the latest VN-Index session.
func (g *Gateway) MarketSummary(ctx context.Context, lang Lang) MarketSummary {
	key := fmt.Sprintf("market_update_v2_%s", lang)
	fallback := func(error) MarketSummary { return MarketSummary{Sources: []Source{}} }

	return cached(ctx, g, "market_summary", key, ttlMarket, fallback, func(ctx context.Context) (MarketSummary, error) {
		prompt, ok := marketSummaryPrompts[lang]
		if !ok {
			prompt = marketSummaryPrompts[LangEN]
		}
		resp, err := g.provider.Generate(ctx, Request{Model: g.opts.Model, Prompt: prompt, Search: true})
		if err != nil {
			return MarketSummary{}, err
		}
		return MarketSummary{Content: resp.Text, Sources: nonNilSources(resp.Sources)}, nil
	})
}

// SymbolAnalysis returns news-driven commentary for one symbol with a sentiment
// label. The cache key ignores price, so a fresh entry is served across ticks.
func (g *Gateway) SymbolAnalysis(ctx context.Context, symbol, price string, lang Lang) SymbolAnalysis {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := fmt.Sprintf("analysis_v2_%s_%s", symbol, lang)
	fallback := func(err error) SymbolAnalysis {
		content := "Analysis temporarily unavailable due to connectivity."
		if IsRateLimit(err) {
			content = "Analysis delayed due to traffic."
		}
		return SymbolAnalysis{Sentiment: Neutral, Content: content, Sources: []Source{}, Timestamp: "--:--"}
	}

	return cached(ctx, g, "symbol_analysis", key, ttlAnalysis, fallback, func(ctx context.Context) (SymbolAnalysis, error) {
		resp, err := g.provider.Generate(ctx, Request{
			Model:  g.opts.Model,
			Prompt: buildAnalysisPrompt(symbol, price, lang),
			Search: true,
		})
		if err != nil {
			return SymbolAnalysis{}, err
		}
		sentiment, content := ParseSentiment(resp.Text)
		return SymbolAnalysis{
			Sentiment: sentiment,
			Content:   content,
			Sources:   nonNilSources(resp.Sources),
			Timestamp: g.now().Format(time.TimeOnly),
		}, nil
	})
}

// LiveQuotes asks the provider for current prices of symbols. Symbols are
// sorted for the cache key; a response without usable JSON yields no prices.
func (g *Gateway) LiveQuotes(ctx context.Context, symbols []string) LiveQuotes {
	sorted := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			sorted = append(sorted, s)
		}
	}
	sort.Strings(sorted)

	fallback := func(error) LiveQuotes { return LiveQuotes{Prices: map[string]Quote{}, Sources: []Source{}} }
	if len(sorted) == 0 {
		return fallback(nil)
	}
	key := "live_prices_v4_" + strings.Join(sorted, "_")

	return cached(ctx, g, "live_quotes", key, ttlQuotes, fallback, func(ctx context.Context) (LiveQuotes, error) {
		resp, err := g.provider.Generate(ctx, Request{
			Model:  g.opts.Model,
			Prompt: buildQuotesPrompt(sorted),
			Search: true,
		})
		if err != nil {
			return LiveQuotes{}, err
		}
		prices, err := ParseQuotes(resp.Text)
		if err != nil {
			return LiveQuotes{}, err
		}
		return LiveQuotes{Prices: prices, Sources: nonNilSources(resp.Sources)}, nil
	})
}

// StrategicAnalysis reviews an investment product thesis with the pro model.
func (g *Gateway) StrategicAnalysis(ctx context.Context, title, thesis string, lang Lang) StrategicAnalysis {
	key := fmt.Sprintf("prod_strat_%s_%s", title, lang)
	fallback := func(error) StrategicAnalysis { return StrategicAnalysis{Analysis: "Deep analysis unavailable."} }

	return cached(ctx, g, "strategic_analysis", key, ttlStrategy, fallback, func(ctx context.Context) (StrategicAnalysis, error) {
		resp, err := g.provider.Generate(ctx, Request{
			Model:  g.opts.ProModel,
			Prompt: buildStrategyPrompt(title, thesis, lang),
			Search: true,
		})
		if err != nil {
			return StrategicAnalysis{}, err
		}
		return StrategicAnalysis{Analysis: resp.Text, Timestamp: g.now().Format(time.TimeOnly)}, nil
	})
}

// InsightSummary returns a two-sentence investment summary for a topic.
func (g *Gateway) InsightSummary(ctx context.Context, title string, lang Lang) string {
	key := fmt.Sprintf("summary_%s_%s", title, lang)
	fallback := func(err error) string {
		if IsRateLimit(err) {
			return "Summary temporarily unavailable."
		}
		return "..."
	}

	return cached(ctx, g, "insight_summary", key, ttlInsight, fallback, func(ctx context.Context) (string, error) {
		resp, err := g.provider.Generate(ctx, Request{
			Model:       g.opts.Model,
			Prompt:      buildInsightPrompt(title, lang),
			Temperature: 0.5,
		})
		if err != nil {
			return "", err
		}
		if resp.Text == "" {
			return "Summary unavailable.", nil
		}
		return resp.Text, nil
	})
}

func (g *Gateway) QuickProductSummary(ctx context.Context, title, thesis string, lang Lang) string {
	return g.InsightSummary(ctx, title+": "+thesis, lang)
}

// GlobalSearch is uncached. Failures and unusable output yield an empty list.
func (g *Gateway) GlobalSearch(ctx context.Context, query string, lang Lang) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}
	}

	var results []SearchResult
	err := g.withRetry(ctx, "global_search", func(ctx context.Context) error {
		resp, err := g.provider.Generate(ctx, Request{
			Model:  g.opts.Model,
			Prompt: buildSearchPrompt(query),
			Search: true,
		})
		if err != nil {
			return err
		}
		results = ParseSearchResults(resp.Text)
		return nil
	})
	if err != nil && !IsRateLimit(err) {
		g.logger.Warn("global search failed", "query", query, "lang", lang, "error", err)
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results
}

func nonNilSources(s []Source) []Source {
	if s == nil {
		return []Source{}
	}
	return s
}
