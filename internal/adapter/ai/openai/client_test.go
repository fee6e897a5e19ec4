package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/ai"
	"github.com/Buringskul/cv-feedback-bot/internal/config"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
)

const analysisJSON = `{"overall_score": 70, "section_scores": {"professional_summary": 14, "work_experience": 14, "skills": 14, "education": 14, "format": 14}, "strengths": ["a"], "improvements": ["b"], "ats_tips": ["c"]}`

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:            "test",
		OpenAIAPIKey:      "sk-test",
		OpenAIBaseURL:     baseURL,
		OpenAIModel:       "gpt-4o-mini",
		LLMMaxTokens:      800,
		LLMMaxInputTokens: 6000,
	}
}

func chatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	})
	return string(b)
}

func TestAnalyzeJSON_Success(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = io.WriteString(w, chatBody("```json\n"+analysisJSON+"\n```"))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL+"/"), ai.DefaultPrompt())
	out, err := c.AnalyzeJSON(context.Background(), "Jane Roe, Go engineer", "Backend Engineer")
	require.NoError(t, err)
	assert.JSONEq(t, analysisJSON, out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Zero(t, got.Temperature)
	assert.Equal(t, 800, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Backend Engineer")
	assert.Contains(t, got.Messages[1].Content, "Jane Roe, Go engineer")
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestAnalyzeJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, chatBody(analysisJSON))
	}))
	defer srv.Close()

	out, err := New(testConfig(srv.URL), ai.DefaultPrompt()).AnalyzeJSON(context.Background(), "text", "General")
	require.NoError(t, err)
	assert.JSONEq(t, analysisJSON, out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAnalyzeJSON_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), ai.DefaultPrompt()).AnalyzeJSON(context.Background(), "text", "General")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAnalyzeJSON_RateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(cfg, ai.DefaultPrompt()).AnalyzeJSON(ctx, "text", "General")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
}

func TestAnalyzeJSON_NonJSONContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, chatBody("I'm sorry, I can't evaluate this."))
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), ai.DefaultPrompt()).AnalyzeJSON(context.Background(), "text", "General")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.ErrorContains(t, err, "non-JSON")
}

func TestAnalyzeJSON_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices": []}`)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), ai.DefaultPrompt()).AnalyzeJSON(context.Background(), "text", "General")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestAnalyzeJSON_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(testConfig(srv.URL), ai.DefaultPrompt()).AnalyzeJSON(ctx, "text", "General")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestAnalyzeJSON_MissingKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.OpenAIAPIKey = ""
	_, err := New(cfg, ai.DefaultPrompt()).AnalyzeJSON(context.Background(), "text", "General")
	assert.ErrorIs(t, err, domain.ErrInternal)
}
