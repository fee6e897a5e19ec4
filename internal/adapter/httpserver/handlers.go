package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/textextractor"
	"github.com/Buringskul/cv-feedback-bot/internal/config"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
	obsctx "github.com/Buringskul/cv-feedback-bot/internal/observability"
)

// AnalysisService scores an uploaded résumé for a role.
type AnalysisService interface {
	Analyze(ctx context.Context, fileName string, data []byte, role string) (domain.AnalysisResult, error)
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg           config.Config
	Analysis      AnalysisService
	LLMConfigured bool
	CacheCheck    func(ctx context.Context) error
	TikaCheck     func(ctx context.Context) error
}

// NewServer constructs the handler set. Nil checks are skipped by readiness.
func NewServer(cfg config.Config, analysis AnalysisService, cacheCheck, tikaCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:           cfg,
		Analysis:      analysis,
		LLMConfigured: cfg.OpenAIAPIKey != "",
		CacheCheck:    cacheCheck,
		TikaCheck:     tikaCheck,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// analyzeForm holds the non-file multipart fields. The role is part of the
// cache key, where "|" separates it from the text.
type analyzeForm struct {
	Role string `validate:"max=100,excludesall=0x7C"`
}

// normalizeRole trims the submitted role and applies the default.
func normalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return domain.DefaultRole
	}
	return role
}

func (s *Server) maxUploadBytes() int64 {
	mb := s.Cfg.MaxUploadMB
	if mb <= 0 {
		mb = 10
	}
	return mb << 20
}

// AnalyzeHandler handles POST /api/analyze with a multipart "file" and an
// optional "role".
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument))
			return
		}
		maxBytes := s.maxUploadBytes()
		// Leave headroom for multipart framing and the role field.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if isTooLarge(err) {
				writeErrorMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		form := analyzeForm{Role: normalizeRole(r.FormValue("role"))}
		if err := getValidator().Struct(form); err != nil {
			writeError(w, r, fmt.Errorf("%w: role must be at most 100 characters and must not contain '|'", domain.ErrInvalidArgument))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument))
			return
		}
		defer func() { _ = file.Close() }()
		if header.Size > maxBytes {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file read: %v", domain.ErrInvalidArgument, err))
			return
		}
		if int64(len(data)) > maxBytes {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		// Empty uploads are answered with the placeholder result downstream.
		if len(data) > 0 && textextractor.Kind(header.Filename, data) == "" {
			writeErrorMessage(w, http.StatusUnsupportedMediaType, "unsupported media type")
			return
		}

		ctx := obsctx.WithLogAttrs(r.Context(), slog.String("file", header.Filename), slog.String("role", form.Role))
		if c, ok := ClaimsFromContext(ctx); ok {
			ctx = obsctx.WithLogAttrs(ctx, slog.String("subject", c.Subject))
		}
		res, err := s.Analysis.Analyze(ctx, header.Filename, data, form.Role)
		if err != nil {
			writeError(w, r.WithContext(ctx), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "too large")
}

// MeHandler returns the verified token claims of the caller.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeErrorMessage(w, http.StatusUnauthorized, "missing token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": c})
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

type readinessCheck struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

// ReadyzHandler reports readiness. Only a failing required check (the LLM
// credentials) yields 503; the cache and Tika degrade gracefully.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := []readinessCheck{{Name: "llm", OK: s.LLMConfigured, Required: true}}
		if !s.LLMConfigured {
			checks[0].Details = "OPENAI_API_KEY not set"
		}
		probe := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			c := readinessCheck{Name: name, OK: true}
			if err := fn(ctx); err != nil {
				c.OK, c.Details = false, err.Error()
			}
			checks = append(checks, c)
		}
		probe("cache", s.CacheCheck)
		probe("tika", s.TikaCheck)

		ready := true
		for _, c := range checks {
			if c.Required && !c.OK {
				ready = false
			}
		}
		st := http.StatusOK
		if !ready {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"ok": ready, "checks": checks})
	}
}
