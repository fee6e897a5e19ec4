package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Buringskul/cv-feedback-bot/internal/config"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
)

// Claims are the verified identity claims of a bearer token.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// ClaimsFromContext returns the claims stored by BearerAuth, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// TokenVerifier validates HS256 bearer tokens against a shared secret.
type TokenVerifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewTokenVerifier builds a verifier from the auth settings in cfg.
// Issuer and audience are only enforced when configured.
func NewTokenVerifier(cfg config.Config) *TokenVerifier {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.AuthIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.AuthIssuer))
	}
	if cfg.AuthAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.AuthAudience))
	}
	return &TokenVerifier{secret: []byte(cfg.AuthJWTSecret), opts: opts}
}

// Verify parses tokenString and returns its claims.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrUnauthorized)
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token not valid", domain.ErrUnauthorized)
	}
	return claims, nil
}

// bearerToken strips a case-insensitive "Bearer" scheme from the header value.
func bearerToken(h string) string {
	h = strings.TrimSpace(h)
	if len(h) >= 6 && strings.EqualFold(h[:6], "bearer") {
		rest := h[6:]
		if rest == "" {
			return ""
		}
		if rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}
	return h
}

// BearerAuth rejects requests without a valid bearer token. With no secret
// configured it lets every request through.
func BearerAuth(cfg config.Config) func(http.Handler) http.Handler {
	if !cfg.AuthEnabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	verifier := NewTokenVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r.Header.Get("Authorization"))
			if tok == "" {
				writeErrorMessage(w, http.StatusUnauthorized, "missing token")
				return
			}
			claims, err := verifier.Verify(tok)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
