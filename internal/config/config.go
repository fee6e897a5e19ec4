// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	// RedisURL selects the shared result store. Empty keeps results in process memory.
	RedisURL             string        `env:"REDIS_URL" envDefault:""`
	CacheTTL             time.Duration `env:"CACHE_TTL" envDefault:"604800s"`
	CacheOpTimeout       time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"500ms"`
	CacheKeyVersion      string        `env:"CACHE_KEY_VERSION" envDefault:"v2"`
	CacheMemoryEntries   int           `env:"CACHE_MEMORY_ENTRIES" envDefault:"1024"`
	CacheBreakerFailures uint32        `env:"CACHE_BREAKER_FAILURES" envDefault:"3"`
	CacheBreakerCooldown time.Duration `env:"CACHE_BREAKER_COOLDOWN" envDefault:"30s"`

	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel       string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout        time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMMaxTokens      int           `env:"LLM_MAX_TOKENS" envDefault:"1200"`
	LLMMaxInputTokens int           `env:"LLM_MAX_INPUT_TOKENS" envDefault:"6000"`
	// LLMPromptFile points at an optional YAML file overriding the built-in prompt.
	LLMPromptFile string `env:"LLM_PROMPT_FILE" envDefault:""`
	// AI Backoff Configuration
	AIBackoffMaxElapsedTime  time.Duration `env:"AI_BACKOFF_MAX_ELAPSED_TIME" envDefault:"15s"`
	AIBackoffInitialInterval time.Duration `env:"AI_BACKOFF_INITIAL_INTERVAL" envDefault:"500ms"`
	AIBackoffMaxInterval     time.Duration `env:"AI_BACKOFF_MAX_INTERVAL" envDefault:"4s"`
	AIBackoffMultiplier      float64       `env:"AI_BACKOFF_MULTIPLIER" envDefault:"2.0"`

	// TikaURL specifies the base URL for the Apache Tika server used for OCR and DOCX extraction.
	// Empty disables the fallback.
	TikaURL            string        `env:"TIKA_URL" envDefault:""`
	TikaTimeout        time.Duration `env:"TIKA_TIMEOUT" envDefault:"30s"`
	NativeTextMinChars int           `env:"NATIVE_TEXT_MIN_CHARS" envDefault:"50"`
	MinTextChars       int           `env:"MIN_TEXT_CHARS" envDefault:"30"`

	SummaryBoostMinOverall int `env:"SUMMARY_BOOST_MIN_OVERALL" envDefault:"80"`
	SummaryBoostCap        int `env:"SUMMARY_BOOST_CAP" envDefault:"20"`
	ScoreTolerance         int `env:"SCORE_TOLERANCE" envDefault:"5"`

	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`
	AuthIssuer    string `env:"AUTH_ISSUER" envDefault:""`
	AuthAudience  string `env:"AUTH_AUDIENCE" envDefault:"authenticated"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"cv-feedback-bot"`
	// OTELSampleRatio in (0,1]; 0 samples everything outside prod and 10% in prod.
	OTELSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"0"`

	MaxUploadMB           int64         `env:"MAX_UPLOAD_MB" envDefault:"10"`
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"http://localhost:5173,http://localhost:8080"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"120s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"130s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses environment variables into a Config.
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// Validate checks that the request deadline leaves room for the slowest
// extraction plus the LLM call, so upstream timeouts surface as 504s.
func (c Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return nil
	}
	if budget := c.AnalysisBudget(); c.RequestTimeout <= budget {
		return fmt.Errorf("REQUEST_TIMEOUT %s must exceed extraction plus LLM budget %s", c.RequestTimeout, budget)
	}
	if c.HTTPWriteTimeout > 0 && c.HTTPWriteTimeout <= c.RequestTimeout {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT %s must exceed REQUEST_TIMEOUT %s", c.HTTPWriteTimeout, c.RequestTimeout)
	}
	return nil
}

// AnalysisBudget is the worst-case time spent upstream for one upload.
func (c Config) AnalysisBudget() time.Duration {
	budget := c.LLMTimeout
	if c.TikaURL != "" {
		budget += c.TikaTimeout
	}
	return budget
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// AuthEnabled reports whether bearer tokens are verified on the API routes.
func (c Config) AuthEnabled() bool { return c.AuthJWTSecret != "" }

// CacheBackend names the result store selected by the configuration.
func (c Config) CacheBackend() string {
	switch {
	case c.RedisURL != "":
		return "redis"
	case c.CacheMemoryEntries > 0:
		return "memory"
	default:
		return "none"
	}
}

// AllowedOrigins splits CORSAllowOrigins into trimmed, non-empty entries.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// GetAIBackoffConfig returns backoff configuration appropriate for the current environment.
// In test environments, uses much shorter timeouts for faster test execution.
func (c Config) GetAIBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration, multiplier float64) {
	if c.IsTest() {
		return 2 * time.Second, 50 * time.Millisecond, 200 * time.Millisecond, 2.0
	}
	return c.AIBackoffMaxElapsedTime, c.AIBackoffInitialInterval, c.AIBackoffMaxInterval, c.AIBackoffMultiplier
}
