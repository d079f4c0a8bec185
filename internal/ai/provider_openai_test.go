package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/logger"
)

type completionServer struct {
	mu      sync.Mutex
	status  int
	body    string
	auth    []string
	request map[string]any
}

func (s *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auth = append(s.auth, r.Header.Get("Authorization"))
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &s.request)

	w.Header().Set("Content-Type", "application/json")
	if s.status != 0 {
		w.WriteHeader(s.status)
	}
	_, _ = io.WriteString(w, s.body)
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(b)
}

func newTestProvider(t *testing.T, srv *completionServer, searchModel string) *OpenAIProvider {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := &config.Config{}
	cfg.AI.APIKey = "sk-initial"
	cfg.AI.BaseURL = ts.URL + "/v1"
	cfg.AI.Model = "test-model"
	cfg.AI.SearchModel = searchModel
	return NewOpenAIProvider(cfg, logger.Discard())
}

func TestOpenAIProviderGenerate(t *testing.T) {
	srv := &completionServer{body: completionBody("<think>check sources</think>VNM closed at 78.5 per [CafeF](https://cafef.vn/vnm.chn).")}
	p := newTestProvider(t, srv, "")

	resp, err := p.Generate(context.Background(), Request{
		System:  "be brief",
		History: []Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		Prompt:  "VNM price?",
	})
	require.NoError(t, err)
	assert.Equal(t, "VNM closed at 78.5 per [CafeF](https://cafef.vn/vnm.chn).", resp.Text)
	assert.Equal(t, []Source{{Title: "CafeF", URI: "https://cafef.vn/vnm.chn"}}, resp.Sources)

	assert.Equal(t, "test-model", srv.request["model"])
	msgs, ok := srv.request["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 4)
}

func TestOpenAIProviderUsesSearchModel(t *testing.T) {
	srv := &completionServer{body: completionBody("ok")}
	p := newTestProvider(t, srv, "search-model")

	_, err := p.Generate(context.Background(), Request{Model: "test-model", Prompt: "news", Search: true})
	require.NoError(t, err)
	assert.Equal(t, "search-model", srv.request["model"])
}

func TestOpenAIProviderClassifiesErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rateLimit   bool
		invalidCred bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`, true, false},
		{"bad key", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, false, true},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &completionServer{status: tt.status, body: tt.body}
			p := newTestProvider(t, srv, "")

			_, err := p.Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.rateLimit, IsRateLimit(err))
			assert.Equal(t, tt.invalidCred, IsInvalidCredential(err))
		})
	}
}

func TestOpenAIProviderNoChoicesIsMalformed(t *testing.T) {
	srv := &completionServer{body: `{"id":"x","object":"chat.completion","choices":[]}`}
	p := newTestProvider(t, srv, "")

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestOpenAIProviderSetAPIKey(t *testing.T) {
	srv := &completionServer{body: completionBody("ok")}
	p := newTestProvider(t, srv, "")

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	p.SetAPIKey("sk-replaced")
	_, err = p.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer sk-initial", "Bearer sk-replaced"}, srv.auth)
}
