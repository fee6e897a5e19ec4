// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the résumé analysis endpoint together with health, readiness
// and identity routes. Domain errors are mapped to status codes in one place.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Buringskul/cv-feedback-bot/internal/domain"
	obsctx "github.com/Buringskul/cv-feedback-bot/internal/observability"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps a domain error to its HTTP status and client-facing message.
// Server-side failures do not leak upstream details.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate limited"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "analysis timed out"
	default:
		return http.StatusInternalServerError, "analysis failed"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	lg := obsctx.LoggerFromContext(r.Context())
	if code >= http.StatusInternalServerError {
		lg.Error("request failed", slog.Int("status", code), slog.Any("error", err))
	} else {
		lg.Warn("request rejected", slog.Int("status", code), slog.Any("error", err))
	}
	writeErrorMessage(w, code, msg)
}

// RateLimitExceeded answers a request rejected by the per-IP limiter.
func RateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, domain.ErrRateLimited)
}
