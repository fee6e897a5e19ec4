// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/observability"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
	obsctx "github.com/Buringskul/cv-feedback-bot/internal/observability"
	"github.com/Buringskul/cv-feedback-bot/pkg/textx"
)

// DefaultResultTTL is how long an analysis stays servable from the store.
const DefaultResultTTL = 7 * 24 * time.Hour

// AnalyzeOptions tunes an AnalyzeService. Zero values take the defaults.
type AnalyzeOptions struct {
	Policy       ReconcilePolicy
	TTL          time.Duration
	KeyVersion   string
	MinTextChars int
	LLMTimeout   time.Duration
}

// AnalyzeService answers analysis requests: extract, look up by fingerprint,
// and on a miss ask the LLM, reconcile, store and return.
type AnalyzeService struct {
	Extractor domain.TextExtractor
	LLM       domain.Analyzer
	Store     domain.ResultStore
	opts      AnalyzeOptions
}

// NewAnalyzeService constructs an AnalyzeService with its dependencies.
func NewAnalyzeService(ext domain.TextExtractor, llm domain.Analyzer, store domain.ResultStore, opts AnalyzeOptions) AnalyzeService {
	if opts.Policy == (ReconcilePolicy{}) {
		opts.Policy = DefaultReconcilePolicy
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultResultTTL
	}
	if opts.KeyVersion == "" {
		opts.KeyVersion = FingerprintVersion
	}
	if opts.MinTextChars <= 0 {
		opts.MinTextChars = 30
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = 60 * time.Second
	}
	return AnalyzeService{Extractor: ext, LLM: llm, Store: store, opts: opts}
}

// Analyze extracts text from an uploaded document and analyzes it for role.
func (s AnalyzeService) Analyze(ctx domain.Context, fileName string, data []byte, role string) (domain.AnalysisResult, error) {
	tracer := otel.Tracer("usecase.analyze")
	ctx, span := tracer.Start(ctx, "AnalyzeService.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("file.name", fileName), attribute.Int("file.size", len(data)))

	text := s.Extractor.Extract(ctx, fileName, data)
	return s.AnalyzeText(ctx, text, role)
}

// AnalyzeText runs the cache-or-LLM pipeline on already extracted text.
// Text shorter than the minimum yields the placeholder without touching
// the store or the LLM. Store failures never fail the request.
func (s AnalyzeService) AnalyzeText(ctx domain.Context, text, role string) (domain.AnalysisResult, error) {
	tracer := otel.Tracer("usecase.analyze")
	ctx, span := tracer.Start(ctx, "AnalyzeService.AnalyzeText")
	defer span.End()

	if role == "" {
		role = domain.DefaultRole
	}
	lg := obsctx.LoggerFromContext(ctx)

	if n := textx.TrimmedLen(text); n < s.opts.MinTextChars {
		lg.Info("document unreadable, returning placeholder", slog.Int("text_chars", n))
		observability.RecordPlaceholder()
		span.SetAttributes(attribute.Bool("analysis.placeholder", true))
		return domain.PlaceholderResult(), nil
	}

	key := VersionedFingerprint(s.opts.KeyVersion, text, role)
	span.SetAttributes(attribute.String("analysis.key", key), attribute.String("analysis.role", role))
	ctx = obsctx.WithLogAttrs(ctx, slog.String("cache_key", key))
	lg = obsctx.LoggerFromContext(ctx)

	if cached, ok := s.Store.Get(ctx, key); ok {
		observability.RecordCacheLookup(true)
		span.SetAttributes(attribute.Bool("analysis.cache_hit", true))
		lg.Info("analysis served from store")
		return cached, nil
	}
	observability.RecordCacheLookup(false)
	span.SetAttributes(attribute.Bool("analysis.cache_hit", false))

	// The LLM call outlives a disconnected caller so a finished result still
	// reaches the store; it stays bounded by the LLM timeout.
	llmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.LLMTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.LLM.AnalyzeJSON(llmCtx, text, role)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrUpstreamTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm failed")
		lg.Error("llm analysis failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
		return domain.AnalysisResult{}, fmt.Errorf("op=analyze.llm: %w", err)
	}

	result, err := DecodeAnalysis(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid llm payload")
		lg.Error("llm payload rejected", slog.Any("error", err))
		return domain.AnalysisResult{}, fmt.Errorf("op=analyze.decode: %w", err)
	}

	reconciled, adj := s.opts.Policy.Apply(result)
	observability.RecordReconcile(adj.SummaryBoosted, adj.OverallReplaced)
	observability.ObserveOverallScore(reconciled.OverallScore)
	if adj.SummaryBoosted || adj.OverallReplaced {
		lg.Info("scores reconciled",
			slog.Int("overall_before", result.OverallScore),
			slog.Int("overall_after", reconciled.OverallScore),
			slog.Bool("summary_boosted", adj.SummaryBoosted),
			slog.Bool("overall_replaced", adj.OverallReplaced))
	}

	s.Store.Set(context.WithoutCancel(ctx), key, reconciled, s.opts.TTL)
	lg.Info("analysis completed",
		slog.Int("overall_score", reconciled.OverallScore),
		slog.Duration("llm_elapsed", time.Since(start)))
	return reconciled, nil
}
