package ai

import (
	"fmt"
	"strings"
)

const chatSystemPrompt = `You are UPBOTRADING Assistant, an AI financial expert for UPBO. Provide concise, data-driven answers about Vietnam stock market (HOSE, HNX, UPCOM). When asked about prices or news, ALWAYS search the web to get the latest data.`

var marketSummaryPrompts = map[Lang]string{
	LangEN: "Summarize the latest trading session of Vietnam Stock Market (VN-Index) in 3 bullet points.",
	LangVN: "Tóm tắt diễn biến phiên giao dịch mới nhất của thị trường chứng khoán Việt Nam (VN-Index) trong 3 gạch đầu dòng ngắn gọn.",
	LangZH: "用 3 個要點總結越南股市 (VN-Index) 的最新交易時段。",
}

func buildInsightPrompt(topic string, lang Lang) string {
	return fmt.Sprintf("Provide a 2-sentence investment summary in %s for the topic: %q.", lang.name(), topic)
}

func buildQuotesPrompt(symbols []string) string {
	var sb strings.Builder
	sb.WriteString("Find the current real-time stock price (in VND x1000) and Market Capitalization (in Billion VND) for these Vietnam stocks: ")
	sb.WriteString(strings.Join(symbols, ", "))
	sb.WriteString(".\nPrioritize sources like SSI iBoard, Vietstock, CafeF.\n")
	sb.WriteString(`Return strictly a JSON object where keys are symbols and values are objects with "price" (number) and "marketCap" (string, formatted e.g. "159K B" or "159,000 B").`)
	sb.WriteString("\n")
	sb.WriteString(`Example: {"VNM": {"price": 76.5, "marketCap": "159,000 B"}, "HPG": {"price": 28.1, "marketCap": "163,000 B"}}`)
	return sb.String()
}

func buildAnalysisPrompt(symbol, price string, lang Lang) string {
	answerLang := LangEN.name()
	if lang == LangVN {
		answerLang = LangVN.name()
	}
	return fmt.Sprintf(`Analyze Vietnam stock %q (Price: %s).
Search for recent news and financial drivers.
Return a response with exactly these sections:
1. **Sentiment**: [Bullish], [Bearish], or [Neutral].
2. **News Summary**: A brief paragraph summarizing recent news.
3. **Key Drivers**: 3 bullet points of key drivers.

Language: %s.`, symbol, price, answerLang)
}

func buildStrategyPrompt(title, thesis string, lang Lang) string {
	answerLang := LangEN.name()
	if lang == LangVN {
		answerLang = LangVN.name()
	}
	return fmt.Sprintf(`Analyze this investment product: %q with thesis %q.
Explain its potential risks and rewards in %s.
Search the web to check if similar themes are trending globally.`, title, thesis, answerLang)
}

func buildSearchPrompt(query string) string {
	return fmt.Sprintf(`Search for %q related to finance/investing in Vietnam.
Return a JSON array of 3-4 items. Each item must have: "title", "category" (e.g. Stock, News, Concept), "link" (use a real URL if found via search, or # if generic), and "snippet".`, query)
}
