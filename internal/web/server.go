package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/upbo/upbotrading/internal/ai"
	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/events"
	"github.com/upbo/upbotrading/internal/executor"
	"github.com/upbo/upbotrading/internal/feed"
	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/metrics"
	"github.com/upbo/upbotrading/internal/storage"
)

// CredentialSetter replaces the AI provider key at runtime.
type CredentialSetter interface {
	SetAPIKey(apiKey string)
}

// SnapshotHistory serves valuation history. Nil when the storage driver keeps
// no snapshots.
type SnapshotHistory interface {
	RecentSnapshots(limit int) ([]storage.PortfolioSnapshot, error)
}

type Deps struct {
	Executor    *executor.Executor
	Feed        *feed.Feed
	Gateway     *ai.Gateway
	Credentials CredentialSetter
	Bus         *events.Bus
	History     SnapshotHistory
}

type Server struct {
	httpServer *http.Server
	router     chi.Router
	deps       Deps
	config     *config.Config
	logger     *logger.Logger
	now        func() time.Time

	credMu       sync.RWMutex
	credRequired bool
	credFailedAt time.Time
	unsubscribe  func()

	chats *chatRegistry
}

func NewServer(cfg *config.Config, deps Deps, log *logger.Logger) *Server {
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	s := &Server{
		deps:   deps,
		config: cfg,
		logger: log.With("component", "web"),
		now:    time.Now,
		chats:  newChatRegistry(maxChatSessions, chatIdleTTL),
	}
	s.unsubscribe = deps.Bus.Subscribe(s.handleEvent)

	requestTimeout := cfg.AITimeout() + 5*time.Second

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(routePattern))
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/api", func(r chi.Router) {
		r.Get("/account", s.handleAccount)
		r.Get("/account/history", s.handleHistory)
		r.Post("/orders", s.handlePlaceOrder)

		r.Get("/market", s.handleMarket)
		r.Post("/market/visibility", s.handleVisibility)

		r.Route("/ai", func(r chi.Router) {
			r.Get("/market-summary", s.handleMarketSummary)
			r.Get("/insight", s.handleInsight)
			r.Get("/analysis/{symbol}", s.handleAnalysis)
			r.Post("/strategy", s.handleStrategy)
			r.Post("/quick-summary", s.handleQuickSummary)
			r.Get("/search", s.handleSearch)
		})

		r.Post("/chat", s.handleNewChat)
		r.Post("/chat/{id}/messages", s.handleChatMessage)

		r.Get("/status", s.handleStatus)
		r.Post("/credentials", s.handleCredentials)
	})
	r.Handle("/metrics", metrics.Handler())
	s.router = r

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleEvent(e events.Event) {
	s.credMu.Lock()
	defer s.credMu.Unlock()
	switch e.Kind {
	case events.KindCredentialInvalid:
		s.credRequired = true
		s.credFailedAt = e.At
	case events.KindCredentialReplaced:
		s.credRequired = false
		s.credFailedAt = time.Time{}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
