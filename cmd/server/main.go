// Command server starts the CV feedback HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/ai"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/ai/openai"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/cache"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/cache/redisstore"
	httpserver "github.com/Buringskul/cv-feedback-bot/internal/adapter/httpserver"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/observability"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/textextractor"
	tikaext "github.com/Buringskul/cv-feedback-bot/internal/adapter/textextractor/tika"
	"github.com/Buringskul/cv-feedback-bot/internal/app"
	"github.com/Buringskul/cv-feedback-bot/internal/config"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
	"github.com/Buringskul/cv-feedback-bot/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Result store: Redis when configured, otherwise process memory.
	store, cachePinger, rdb, err := buildStore(cfg)
	if err != nil {
		slog.Error("result store setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	prompt, err := ai.LoadPrompt(cfg.LLMPromptFile)
	if err != nil {
		slog.Error("prompt load failed", slog.Any("error", err))
		os.Exit(1)
	}
	llm := openai.New(cfg, prompt)
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set; analysis requests will fail")
	}

	var tika textextractor.Tika
	var tikaPinger app.Pinger
	if cfg.TikaURL != "" {
		tc := tikaext.New(cfg.TikaURL, cfg.TikaTimeout)
		tika, tikaPinger = tc, tc
	} else {
		slog.Info("TIKA_URL not set; OCR and DOCX extraction disabled")
	}
	extractor := textextractor.New(tika, cfg.NativeTextMinChars)

	analyzeSvc := usecase.NewAnalyzeService(extractor, llm, store, usecase.AnalyzeOptions{
		Policy: usecase.ReconcilePolicy{
			BoostMinOverall: cfg.SummaryBoostMinOverall,
			BoostCap:        cfg.SummaryBoostCap,
			Tolerance:       cfg.ScoreTolerance,
		},
		TTL:          cfg.CacheTTL,
		KeyVersion:   cfg.CacheKeyVersion,
		MinTextChars: cfg.MinTextChars,
		LLMTimeout:   cfg.LLMTimeout,
	})

	cacheCheck, tikaCheck := app.BuildReadinessChecks(cachePinger, tikaPinger)
	srv := httpserver.NewServer(cfg, analyzeSvc, cacheCheck, tikaCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting",
			slog.Int("port", cfg.Port),
			slog.String("cache_backend", cfg.CacheBackend()),
			slog.Bool("auth_enabled", cfg.AuthEnabled()))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
}

// buildStore selects the result store. An unreachable Redis at startup is
// logged, not fatal: the store fails open and recovers when Redis returns.
func buildStore(cfg config.Config) (domain.ResultStore, app.Pinger, *redis.Client, error) {
	switch cfg.CacheBackend() {
	case "redis":
		rdb, err := redisstore.NewClient(cfg.RedisURL, cfg.CacheOpTimeout)
		if err != nil {
			return nil, nil, nil, err
		}
		st := redisstore.New(rdb, redisstore.Options{
			OpTimeout:       cfg.CacheOpTimeout,
			BreakerFailures: cfg.CacheBreakerFailures,
			BreakerCooldown: cfg.CacheBreakerCooldown,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			slog.Warn("redis unreachable at startup; serving without cache until it recovers", slog.Any("error", err))
		} else {
			slog.Info("redis result store connected")
		}
		return st, st, rdb, nil
	case "memory":
		slog.Info("REDIS_URL not set; using in-process result store", slog.Int("entries", cfg.CacheMemoryEntries))
		return cache.NewMemory(cfg.CacheMemoryEntries), nil, nil, nil
	default:
		slog.Warn("result caching disabled")
		return cache.Noop{}, nil, nil, nil
	}
}
