package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/upbo/upbotrading/internal/ai"
	"github.com/upbo/upbotrading/internal/events"
	"github.com/upbo/upbotrading/internal/executor"
	"github.com/upbo/upbotrading/internal/feed"
	"github.com/upbo/upbotrading/internal/portfolio"
	"github.com/upbo/upbotrading/internal/storage"
)

const (
	credentialsOK       = "ok"
	credentialsRequired = "credentials_required"

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type accountResponse struct {
	portfolio.Account
	Valuation portfolio.Valuation `json:"valuation"`
}

type marketResponse struct {
	Quotes  []feed.Quote `json:"quotes"`
	Sources []ai.Source  `json:"sources"`
	Paused  bool         `json:"paused"`
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

type productRequest struct {
	Title  string `json:"title"`
	Thesis string `json:"thesis"`
	Lang   string `json:"lang"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

type chatMessageResponse struct {
	Text    string      `json:"text"`
	Sources []ai.Source `json:"sources"`
}

type credentialsRequest struct {
	APIKey string `json:"apiKey"`
}

type statusResponse struct {
	Credentials      string     `json:"credentials"`
	CredentialFailAt *time.Time `json:"credentialFailedAt,omitempty"`
	CooldownUntil    *time.Time `json:"cooldownUntil,omitempty"`
	FeedPaused       bool       `json:"feedPaused"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, valuation := s.deps.Executor.Snapshot()
	writeJSON(w, http.StatusOK, accountResponse{Account: account, Valuation: valuation})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "not_found", "snapshot history is not kept by this storage driver")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	snapshots, err := s.deps.History.RecentSnapshots(limit)
	if err != nil {
		s.logger.Error("load snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "storage", "could not load history")
		return
	}
	if snapshots == nil {
		snapshots = []storage.PortfolioSnapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var order portfolio.Order
	if !decodeBody(w, r, &order) {
		return
	}

	tx, err := s.deps.Executor.Submit(r.Context(), order)
	if err != nil {
		reason := executor.RejectionReason(err)
		status := http.StatusUnprocessableEntity
		if reason == "storage" {
			status = http.StatusInternalServerError
		}
		writeError(w, status, reason, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, marketResponse{
		Quotes:  s.deps.Feed.Quotes(),
		Sources: s.deps.Feed.Sources(),
		Paused:  s.deps.Feed.Paused(),
	})
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Visible {
		s.deps.Feed.Resume()
	} else {
		s.deps.Feed.Pause()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.deps.Feed.Paused()})
}

func (s *Server) handleMarketSummary(w http.ResponseWriter, r *http.Request) {
	lang := ai.ParseLang(r.URL.Query().Get("lang"))
	writeJSON(w, http.StatusOK, s.deps.Gateway.MarketSummary(r.Context(), lang))
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title := strings.TrimSpace(q.Get("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title is required")
		return
	}
	summary := s.deps.Gateway.InsightSummary(r.Context(), title, ai.ParseLang(q.Get("lang")))
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.deps.Gateway.SymbolAnalysis(r.Context(), symbol, q.Get("price"), ai.ParseLang(q.Get("lang"))))
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Gateway.StrategicAnalysis(r.Context(), req.Title, req.Thesis, ai.ParseLang(req.Lang)))
}

func (s *Server) handleQuickSummary(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	summary := s.deps.Gateway.QuickProductSummary(r.Context(), req.Title, req.Thesis, ai.ParseLang(req.Lang))
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.deps.Gateway.GlobalSearch(r.Context(), q.Get("q"), ai.ParseLang(q.Get("lang"))))
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	session := s.deps.Gateway.NewChatSession()

	s.chats.add(session)

	writeJSON(w, http.StatusCreated, map[string]string{"id": session.ID})
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := s.chats.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown chat session")
		return
	}

	var req chatMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_message", "message is required")
		return
	}

	resp, err := session.Send(r.Context(), req.Message)
	if err != nil {
		s.logger.Warn("chat turn failed", "session", id, "error", err)
		switch {
		case errors.Is(err, ai.ErrQuotaCooldown):
			writeError(w, http.StatusTooManyRequests, "quota_cooldown", "AI quota exhausted, try again shortly")
		case errors.Is(err, ai.ErrInvalidCredential):
			writeError(w, http.StatusServiceUnavailable, credentialsRequired, "AI credential rejected")
		default:
			writeError(w, http.StatusBadGateway, "provider", "AI provider unavailable")
		}
		return
	}

	sources := resp.Sources
	if sources == nil {
		sources = []ai.Source{}
	}
	writeJSON(w, http.StatusOK, chatMessageResponse{Text: resp.Text, Sources: sources})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Credentials: credentialsOK, FeedPaused: s.deps.Feed.Paused()}

	s.credMu.RLock()
	if s.credRequired {
		resp.Credentials = credentialsRequired
		if !s.credFailedAt.IsZero() {
			at := s.credFailedAt
			resp.CredentialFailAt = &at
		}
	}
	s.credMu.RUnlock()

	if until, active := s.deps.Gateway.CooldownUntil(); active {
		resp.CooldownUntil = &until
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_credentials", "apiKey is required")
		return
	}
	if s.deps.Credentials == nil {
		writeError(w, http.StatusNotImplemented, "unsupported", "provider does not accept runtime keys")
		return
	}

	s.deps.Credentials.SetAPIKey(key)
	s.deps.Bus.Publish(events.Event{Kind: events.KindCredentialReplaced, At: s.now()})
	s.logger.Info("AI credential replaced")

	w.WriteHeader(http.StatusNoContent)
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (productRequest, bool) {
	var req productRequest
	if !decodeBody(w, r, &req) {
		return req, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_product", "title is required")
		return req, false
	}
	return req, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}
