// Package metrics provides Prometheus instrumentation for the paper-trading service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts matched paper orders by side.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upbo_orders_total",
		Help: "Total number of matched paper orders",
	}, []string{"side"})

	// OrderRejections counts orders rejected by validation.
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upbo_order_rejections_total",
		Help: "Paper orders rejected before execution",
	}, []string{"reason"})

	// TotalEquity is the paper account equity at the last valuation.
	TotalEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "upbo_total_equity",
		Help: "Paper account total equity at last valuation",
	})

	AICacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upbo_ai_cache_lookups_total",
		Help: "AI cache lookups by operation and result (hit, miss, stale, default)",
	}, []string{"operation", "result"})

	AIProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upbo_ai_provider_calls_total",
		Help: "Calls to the AI provider by outcome",
	}, []string{"outcome"})

	AICooldowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upbo_ai_cooldowns_total",
		Help: "Rate-limit cooldown windows entered",
	})

	FeedPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upbo_feed_polls_total",
		Help: "Market feed polls by outcome",
	}, []string{"outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upbo_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upbo_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. pathFn maps a request to a
// low-cardinality route label.
func Middleware(pathFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := pathFn(r)
			HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
