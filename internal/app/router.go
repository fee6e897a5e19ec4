// Package app wires the HTTP router and readiness probes.
package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/Buringskul/cv-feedback-bot/internal/adapter/httpserver"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/observability"
	"github.com/Buringskul/cv-feedback-bot/internal/config"
)

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	// The span must exist before RequestID builds the request logger.
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Use(httpserver.BearerAuth(cfg))
		api.Get("/me", srv.MeHandler())
		api.Group(func(wr chi.Router) {
			if cfg.RateLimitPerMin > 0 {
				wr.Use(httprate.Limit(cfg.RateLimitPerMin, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(httpserver.RateLimitExceeded),
				))
			}
			wr.Post("/analyze", srv.AnalyzeHandler())
		})
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
