package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/cache"
	httpserver "github.com/Buringskul/cv-feedback-bot/internal/adapter/httpserver"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/textextractor"
	"github.com/Buringskul/cv-feedback-bot/internal/app"
	"github.com/Buringskul/cv-feedback-bot/internal/config"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
	"github.com/Buringskul/cv-feedback-bot/internal/usecase"
)

const consistentPayload = `{"overall_score": 80,
 "section_scores": {"professional_summary": 3, "work_experience": 4, "skills": 3, "education": 3, "format": 3},
 "strengths": ["Concise"], "improvements": ["Add a summary"], "ats_tips": ["Avoid tables"]}`

const resumeText = "Jane Roe\nSenior backend engineer, eight years building Go services.\n"

type countingLLM struct{ calls atomic.Int32 }

func (c *countingLLM) AnalyzeJSON(context.Context, string, string) (string, error) {
	c.calls.Add(1)
	return consistentPayload, nil
}

func testConfig() config.Config {
	return config.Config{
		OpenAIAPIKey:     "sk-test",
		MaxUploadMB:      1,
		RateLimitPerMin:  100,
		RequestTimeout:   5 * time.Second,
		CORSAllowOrigins: "http://localhost:5173",
	}
}

func buildRouter(t *testing.T, cfg config.Config, llm domain.Analyzer) http.Handler {
	t.Helper()
	svc := usecase.NewAnalyzeService(textextractor.New(nil, 50), llm, cache.NewMemory(16), usecase.AnalyzeOptions{})
	return app.BuildRouter(cfg, httpserver.NewServer(cfg, svc, nil, nil))
}

func analyzeRequest(t *testing.T, text, role string) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if role != "" {
		require.NoError(t, w.WriteField("role", role))
	}
	fw, err := w.CreateFormFile("file", "cv.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	r := httptest.NewRequest(http.MethodPost, "/api/analyze", buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

func TestRouter_AnalyzeServesRepeatFromCache(t *testing.T) {
	llm := &countingLLM{}
	h := buildRouter(t, testConfig(), llm)

	var first, second domain.AnalysisResult
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, analyzeRequest(t, resumeText, "Backend"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, analyzeRequest(t, "  "+resumeText+"\n\n", "Backend"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	assert.Equal(t, int32(1), llm.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 80, second.OverallScore)
}

func TestRouter_PlaceholderSkipsLLM(t *testing.T) {
	llm := &countingLLM{}
	h := buildRouter(t, testConfig(), llm)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, analyzeRequest(t, "too short", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.PlaceholderResult(), got)
	assert.Zero(t, llm.calls.Load())
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMin = 1
	h := buildRouter(t, cfg, &countingLLM{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, analyzeRequest(t, resumeText, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, analyzeRequest(t, resumeText, ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limited"}`, rec.Body.String())
}

func TestRouter_AuthRequiredWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = "router-test-secret-router-test-secret"
	cfg.AuthAudience = "authenticated"
	llm := &countingLLM{}
	h := buildRouter(t, cfg, llm)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, analyzeRequest(t, resumeText, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing token"}`, rec.Body.String())
	assert.Zero(t, llm.calls.Load())

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(cfg.AuthJWTSecret))
	require.NoError(t, err)

	req := analyzeRequest(t, resumeText, "")
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	me := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	me.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, me)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sub":"u1"`)
}

func TestRouter_HealthReadyMetrics(t *testing.T) {
	h := buildRouter(t, testConfig(), &countingLLM{})

	for path, want := range map[string]int{"/healthz": 200, "/readyz": 200, "/metrics": 200, "/nope": 404} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
		if path != "/nope" {
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), path)
		}
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := buildRouter(t, testConfig(), &countingLLM{})

	r := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	r.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RequestLogsCarryTraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := buildRouter(t, testConfig(), &countingLLM{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, analyzeRequest(t, resumeText, "Backend"))
	require.Equal(t, http.StatusOK, rec.Code)

	byMsg := map[string]map[string]any{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if msg, ok := entry["msg"].(string); ok {
			byMsg[msg] = entry
		}
	}

	zeroTrace := strings.Repeat("0", 32)
	zeroSpan := strings.Repeat("0", 16)
	for _, msg := range []string{"analysis completed", "http_access"} {
		entry, ok := byMsg[msg]
		require.True(t, ok, "missing log line %q in %s", msg, buf.String())
		assert.Regexp(t, `^[0-9a-f]{32}$`, entry["trace_id"], msg)
		assert.NotEqual(t, zeroTrace, entry["trace_id"], msg)
		assert.NotEqual(t, zeroSpan, entry["span_id"], msg)
		assert.Equal(t, rec.Header().Get("X-Request-Id"), entry["request_id"], msg)
	}
	assert.Equal(t, byMsg["http_access"]["trace_id"], byMsg["analysis completed"]["trace_id"])
}
