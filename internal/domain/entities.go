package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstream          = errors.New("upstream failure")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// DefaultRole is used when a request does not name a target role.
const DefaultRole = "General"

// PlaceholderImprovement is the single improvement returned for unreadable input.
const PlaceholderImprovement = "Not a resume (empty file or unreadable)."

// SectionScores holds the five per-section sub-scores, each in [0,20].
type SectionScores struct {
	ProfessionalSummary int `json:"professional_summary"`
	WorkExperience      int `json:"work_experience"`
	Skills              int `json:"skills"`
	Education           int `json:"education"`
	Format              int `json:"format"`
}

// Sum returns the total of all section scores.
func (s SectionScores) Sum() int {
	return s.ProfessionalSummary + s.WorkExperience + s.Skills + s.Education + s.Format
}

// AnalysisResult is the scored assessment of one résumé for one role.
// Invariant after reconciliation: |OverallScore - 5*SectionScores.Sum()| <= tolerance.
type AnalysisResult struct {
	OverallScore  int           `json:"overall_score"`
	SectionScores SectionScores `json:"section_scores"`
	Strengths     []string      `json:"strengths"`
	Improvements  []string      `json:"improvements"`
	ATSTips       []string      `json:"ats_tips"`
}

// PlaceholderResult is returned when no usable text could be extracted.
// It is never cached.
func PlaceholderResult() AnalysisResult {
	return AnalysisResult{
		OverallScore: 15,
		Strengths:    []string{},
		Improvements: []string{PlaceholderImprovement},
		ATSTips:      []string{},
	}
}

// Ports

// TextExtractor turns an uploaded document into plain text.
// It never fails: unreadable input yields "".
type TextExtractor interface {
	Extract(ctx Context, fileName string, data []byte) string
}

// Analyzer asks the language model for an assessment of text against role
// and returns the model's JSON object with any surrounding prose removed.
type Analyzer interface {
	AnalyzeJSON(ctx Context, text, role string) (string, error)
}

// ResultStore is a fail-open key/value store for analysis results.
// Get reports a miss for every failure; Set silently drops failed writes.
type ResultStore interface {
	Get(ctx Context, key string) (AnalysisResult, bool)
	Set(ctx Context, key string, v AnalysisResult, ttl time.Duration)
	Available() bool
}

// Context is an alias to context.Context so ports read naturally
// while adapters and usecases pass the std context through.
type Context = context.Context
