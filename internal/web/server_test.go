package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upbo/upbotrading/internal/ai"
	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/events"
	"github.com/upbo/upbotrading/internal/executor"
	"github.com/upbo/upbotrading/internal/feed"
	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/portfolio"
	"github.com/upbo/upbotrading/internal/storage"
	"github.com/upbo/upbotrading/internal/telegram"
)

type fakeProvider struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	keys  []string
}

func (p *fakeProvider) Generate(_ context.Context, _ ai.Request) (*ai.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Response{Text: p.text}, nil
}

func (p *fakeProvider) SetAPIKey(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.err = nil
}

type fakeHistory struct {
	snapshots []storage.PortfolioSnapshot
	limit     int
}

func (h *fakeHistory) RecentSnapshots(limit int) ([]storage.PortfolioSnapshot, error) {
	h.limit = limit
	return h.snapshots, nil
}

type testServer struct {
	server   *Server
	provider *fakeProvider
	feed     *feed.Feed
	bus      *events.Bus
}

func newTestServer(t *testing.T, history SnapshotHistory) *testServer {
	t.Helper()
	log := logger.Discard()
	cfg := &config.Config{}

	engine := portfolio.NewEngine(storage.NewMemoryKV(), portfolio.DefaultInitialCash, log)
	require.NoError(t, engine.Load(context.Background()))
	exec := executor.NewExecutor(engine, portfolio.NewPriceBook(), nil, telegram.NewNotifier(cfg, log), log)

	provider := &fakeProvider{text: "ok"}
	bus := events.NewBus()
	gw := ai.NewGateway(provider, storage.NewMemoryKV(), bus, ai.Options{Model: "test", RetryDelay: time.Millisecond}, log)
	fd := feed.New(gw, feed.DefaultUniverse(), feed.Options{Interval: time.Hour}, log)

	srv := NewServer(cfg, Deps{
		Executor:    exec,
		Feed:        fd,
		Gateway:     gw,
		Credentials: provider,
		Bus:         bus,
		History:     history,
	}, log)
	return &testServer{server: srv, provider: provider, feed: fd, bus: bus}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPlaceOrderUpdatesAccount(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/orders", `{"symbol":"vnm","qty":100,"price":78.5,"side":"Buy"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decode[portfolio.Transaction](t, rec)
	assert.Equal(t, "VNM", tx.Symbol)
	assert.Equal(t, portfolio.TxBuy, tx.Type)
	assert.Equal(t, 7850.0, tx.Value)

	rec = ts.do(t, http.MethodGet, "/api/account", "")
	require.Equal(t, http.StatusOK, rec.Code)
	account := decode[accountResponse](t, rec)
	assert.Equal(t, 99_992_150.0, account.CashBalance)
	require.Len(t, account.Positions, 1)
	require.Len(t, account.Transactions, 1)
	assert.Equal(t, 100_000_000.0, account.Valuation.TotalEquity)
}

func TestPlaceOrderValidationErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/orders", `{"symbol":"VNM","qty":1,"price":78.5,"side":"Sell"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_holdings", decode[errorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/orders", `{"symbol":"VNM","qty":0,"price":78.5,"side":"Buy"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_order", decode[errorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/orders", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/account", "")
	assert.Equal(t, float64(portfolio.DefaultInitialCash), decode[accountResponse](t, rec).CashBalance)
}

func TestMarketVisibilityPausesFeed(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/market/visibility", `{"visible":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.feed.Paused())

	rec = ts.do(t, http.MethodGet, "/api/market", "")
	market := decode[marketResponse](t, rec)
	assert.True(t, market.Paused)
	assert.Len(t, market.Quotes, len(feed.DefaultUniverse()))
	assert.NotNil(t, market.Sources)

	ts.do(t, http.MethodPost, "/api/market/visibility", `{"visible":true}`)
	assert.False(t, ts.feed.Paused())
}

func TestInsightEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.provider.text = "Banks look resilient."

	rec := ts.do(t, http.MethodGet, "/api/ai/insight", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/ai/insight?title=Banking&lang=vn", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Banks look resilient.", decode[summaryResponse](t, rec).Summary)

	rec = ts.do(t, http.MethodPost, "/api/ai/quick-summary", `{"title":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/ai/strategy", `{"title":"Green Bond","thesis":"Rates fall","lang":"en"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Banks look resilient.", decode[ai.StrategicAnalysis](t, rec).Analysis)
}

func TestAnalysisNormalizesSymbol(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.provider.text = "[Bullish] Strong dairy demand."

	rec := ts.do(t, http.MethodGet, "/api/ai/analysis/vnm?price=78.5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	analysis := decode[ai.SymbolAnalysis](t, rec)
	assert.Equal(t, ai.Bullish, analysis.Sentiment)
}

func TestChatSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.provider.text = "VN-Index closed higher."

	rec := ts.do(t, http.MethodPost, "/api/chat", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]string](t, rec)["id"]
	require.NotEmpty(t, id)

	rec = ts.do(t, http.MethodPost, "/api/chat/"+id+"/messages", `{"message":"How did the market do?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[chatMessageResponse](t, rec)
	assert.Equal(t, "VN-Index closed higher.", reply.Text)
	assert.NotNil(t, reply.Sources)

	rec = ts.do(t, http.MethodPost, "/api/chat/"+id+"/messages", `{"message":"  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/chat/missing/messages", `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatProviderFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.provider.err = errors.New("connection reset")

	id := decode[map[string]string](t, ts.do(t, http.MethodPost, "/api/chat", ""))["id"]
	rec := ts.do(t, http.MethodPost, "/api/chat/"+id+"/messages", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCredentialLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	status := decode[statusResponse](t, ts.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, credentialsOK, status.Credentials)

	ts.provider.err = &ai.ProviderError{StatusCode: http.StatusUnauthorized, Message: "API key not valid"}
	rec := ts.do(t, http.MethodGet, "/api/ai/search?q=VN30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	status = decode[statusResponse](t, ts.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, credentialsRequired, status.Credentials)
	assert.NotNil(t, status.CredentialFailAt)

	rec = ts.do(t, http.MethodPost, "/api/credentials", `{"apiKey":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/credentials", `{"apiKey":"sk-new"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"sk-new"}, ts.provider.keys)

	status = decode[statusResponse](t, ts.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, credentialsOK, status.Credentials)
	assert.Nil(t, status.CredentialFailAt)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/account/history", "").Code)

	history := &fakeHistory{snapshots: []storage.PortfolioSnapshot{{Cash: 1, TotalEquity: 2}}}
	ts = newTestServer(t, history)

	rec := ts.do(t, http.MethodGet, "/api/account/history?limit=10000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxHistoryLimit, history.limit)
	assert.Len(t, decode[[]storage.PortfolioSnapshot](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/account/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodGet, "/api/status", "")

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `upbo_http_requests_total{method="GET",path="/api/status"`)
}

func TestShutdownDetachesFromBus(t *testing.T) {
	ts := newTestServer(t, nil)
	require.NoError(t, ts.server.Shutdown(context.Background()))

	ts.bus.Publish(events.Event{Kind: events.KindCredentialInvalid, At: time.Now()})
	status := decode[statusResponse](t, ts.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, credentialsOK, status.Credentials)
}
