package ai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	thinkTagRegex     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFenceRegex    = regexp.MustCompile("```json\\n?|```")
	jsonBlockRegex    = regexp.MustCompile(`\{[\s\S]*\}|\[[\s\S]*\]`)
	sentimentRegex    = regexp.MustCompile(`(?i)\[(Bullish|Bearish|Neutral|Tích cực|Tiêu cực|Trung lập)\]`)
	markdownLinkRegex = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
)

// StripThinkTags removes reasoning blocks emitted by some models.
func StripThinkTags(text string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(text, ""))
}

// ExtractJSON pulls a JSON document out of provider text that may be wrapped in
// markdown fences or prose.
func ExtractJSON(text string) (string, bool) {
	text = StripThinkTags(text)
	if text == "" {
		return "", false
	}
	cleaned := strings.TrimSpace(codeFenceRegex.ReplaceAllString(text, ""))
	if gjson.Valid(cleaned) {
		return cleaned, true
	}
	if m := jsonBlockRegex.FindString(text); m != "" && gjson.Valid(m) {
		return m, true
	}
	return "", false
}

// ParseQuotes decodes a symbol-keyed quote object. Each value is either a bare
// number or an object with price and marketCap.
func ParseQuotes(text string) (map[string]Quote, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON in quote response", ErrMalformedResponse)
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: quote response is not an object", ErrMalformedResponse)
	}

	quotes := make(map[string]Quote)
	doc.ForEach(func(key, value gjson.Result) bool {
		q, ok := decodeQuote(value)
		if ok {
			quotes[strings.ToUpper(strings.TrimSpace(key.String()))] = q
		}
		return true
	})
	return quotes, nil
}

func decodeQuote(v gjson.Result) (Quote, bool) {
	var q Quote
	switch {
	case v.Type == gjson.Number:
		q.Price = v.Float()
	case v.Type == gjson.String:
		q.Price = gjson.Parse(strings.ReplaceAll(v.Str, ",", "")).Float()
	case v.IsObject():
		q.Price = v.Get("price").Float()
		q.MarketCap = v.Get("marketCap").String()
	default:
		return Quote{}, false
	}
	if q.Price <= 0 {
		return Quote{}, false
	}
	return q, true
}

// ParseSearchResults returns the items of a JSON array, or nil if the text
// holds no usable array.
func ParseSearchResults(text string) []SearchResult {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil
	}
	doc := gjson.Parse(raw)
	if !doc.IsArray() {
		return nil
	}
	var results []SearchResult
	for _, item := range doc.Array() {
		if !item.IsObject() {
			continue
		}
		r := SearchResult{
			Title:    item.Get("title").String(),
			Category: item.Get("category").String(),
			Link:     item.Get("link").String(),
			Snippet:  item.Get("snippet").String(),
		}
		if r.Title == "" {
			continue
		}
		if r.Link == "" {
			r.Link = "#"
		}
		results = append(results, r)
	}
	return results
}

// ParseSentiment finds the first sentiment tag, removes it from the text and
// returns the normalized label. Neutral when no tag is present.
func ParseSentiment(text string) (Sentiment, string) {
	m := sentimentRegex.FindStringSubmatch(text)
	if m == nil {
		return Neutral, text
	}
	content := strings.TrimSpace(strings.Replace(text, m[0], "", 1))
	switch strings.ToLower(m[1]) {
	case "bullish", "tích cực":
		return Bullish, content
	case "bearish", "tiêu cực":
		return Bearish, content
	default:
		return Neutral, content
	}
}

// ExtractSources collects markdown links as grounding sources, first occurrence wins.
func ExtractSources(text string) []Source {
	var sources []Source
	seen := make(map[string]bool)
	for _, m := range markdownLinkRegex.FindAllStringSubmatch(text, -1) {
		uri := m[2]
		if seen[uri] {
			continue
		}
		seen[uri] = true
		sources = append(sources, Source{Title: strings.TrimSpace(m[1]), URI: uri})
	}
	return sources
}
