package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider", "operation"},
	)
	AIRequestErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_request_errors_total",
			Help: "Failed AI requests by provider and reason",
		},
		[]string{"provider", "reason"},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_lookups_total",
			Help: "Result store lookups by outcome (hit, miss)",
		},
		[]string{"result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_errors_total",
			Help: "Result store failures absorbed by fail-open handling, by operation",
		},
		[]string{"op"},
	)
	CacheBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_cache_breaker_state",
			Help: "Result store circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	ReconcileAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_reconcile_adjustments_total",
			Help: "Score reconciliation changes by kind",
		},
		[]string{"kind"},
	)
	PlaceholderTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_placeholder_total",
			Help: "Requests answered with the unreadable-document placeholder",
		},
	)
	OverallScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_overall_score",
			Help:    "Distribution of reconciled overall scores ([0,100])",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	TextExtractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text_extraction_total",
			Help: "Text extraction attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AIRequestErrorsTotal)
	prometheus.MustRegister(CacheLookupsTotal)
	prometheus.MustRegister(CacheErrorsTotal)
	prometheus.MustRegister(CacheBreakerState)
	prometheus.MustRegister(ReconcileAdjustmentsTotal)
	prometheus.MustRegister(PlaceholderTotal)
	prometheus.MustRegister(OverallScoreHistogram)
	prometheus.MustRegister(TextExtractionTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// RecordCacheLookup counts a hit or a miss.
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// RecordCacheError counts a store failure that was absorbed.
func RecordCacheError(op string) {
	CacheErrorsTotal.WithLabelValues(op).Inc()
}

// SetCacheBreakerState publishes the breaker state (0 closed, 1 half-open, 2 open).
func SetCacheBreakerState(state int) {
	CacheBreakerState.Set(float64(state))
}

// RecordReconcile counts which corrections the reconciler applied.
func RecordReconcile(summaryBoosted, overallReplaced bool) {
	if summaryBoosted {
		ReconcileAdjustmentsTotal.WithLabelValues("summary_boost").Inc()
	}
	if overallReplaced {
		ReconcileAdjustmentsTotal.WithLabelValues("overall_corrected").Inc()
	}
}

// RecordPlaceholder counts a short-circuited, unreadable document.
func RecordPlaceholder() {
	PlaceholderTotal.Inc()
}

// ObserveOverallScore records a reconciled overall score.
func ObserveOverallScore(score int) {
	if score >= 0 && score <= 100 {
		OverallScoreHistogram.Observe(float64(score))
	}
}

// RecordExtraction counts one extraction attempt.
func RecordExtraction(method, outcome string) {
	TextExtractionTotal.WithLabelValues(method, outcome).Inc()
}
