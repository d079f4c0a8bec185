package ai

import "context"

// Provider is an external generative model. Implementations report failures as
// *ProviderError so the gateway can classify them.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model   string
	System  string
	Prompt  string
	History []Message
	// Search asks the provider to ground the answer in web results.
	Search      bool
	Temperature float32
}

type Response struct {
	Text    string
	Sources []Source
}

// Source is a grounding citation returned alongside provider text.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type Lang string

const (
	LangEN Lang = "en"
	LangVN Lang = "vn"
	LangZH Lang = "zh"
)

// ParseLang maps a request parameter to a supported language, defaulting to English.
func ParseLang(s string) Lang {
	switch Lang(s) {
	case LangVN, LangZH:
		return Lang(s)
	default:
		return LangEN
	}
}

func (l Lang) name() string {
	switch l {
	case LangVN:
		return "Vietnamese"
	case LangZH:
		return "Simplified Chinese"
	default:
		return "English"
	}
}

type Sentiment string

const (
	Bullish Sentiment = "Bullish"
	Bearish Sentiment = "Bearish"
	Neutral Sentiment = "Neutral"
)

type MarketSummary struct {
	Content string   `json:"content"`
	Sources []Source `json:"sources"`
}

type SymbolAnalysis struct {
	Sentiment Sentiment `json:"sentiment"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources"`
	Timestamp string    `json:"timestamp"`
}

// Quote is the normalized provider quote for one symbol.
type Quote struct {
	Price     float64 `json:"price"`
	MarketCap string  `json:"marketCap,omitempty"`
}

type LiveQuotes struct {
	Prices  map[string]Quote `json:"prices"`
	Sources []Source         `json:"sources"`
}

// PriceMap flattens the quotes to symbol -> price.
func (q LiveQuotes) PriceMap() map[string]float64 {
	out := make(map[string]float64, len(q.Prices))
	for sym, quote := range q.Prices {
		out[sym] = quote.Price
	}
	return out
}

type StrategicAnalysis struct {
	Analysis  string `json:"analysis"`
	Timestamp string `json:"timestamp,omitempty"`
}

type SearchResult struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
}
