package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/Buringskul/cv-feedback-bot/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// rawAnalysis mirrors the LLM's JSON object. Pointers distinguish a missing
// score from a zero score.
type rawAnalysis struct {
	OverallScore  *float64     `json:"overall_score" validate:"required"`
	SectionScores *rawSections `json:"section_scores" validate:"required"`
	Strengths     []string     `json:"strengths" validate:"required"`
	Improvements  []string     `json:"improvements" validate:"required"`
	ATSTips       []string     `json:"ats_tips" validate:"required"`
}

type rawSections struct {
	ProfessionalSummary *float64 `json:"professional_summary" validate:"required,min=0,max=20"`
	WorkExperience      *float64 `json:"work_experience" validate:"required,min=0,max=20"`
	Skills              *float64 `json:"skills" validate:"required,min=0,max=20"`
	Education           *float64 `json:"education" validate:"required,min=0,max=20"`
	Format              *float64 `json:"format" validate:"required,min=0,max=20"`
}

// DecodeAnalysis parses and shape-checks the LLM's JSON object.
// Every field must be present, scores must be numeric and section scores
// must lie in [0,20]. Fractional scores are rounded to the nearest integer.
// Failures wrap domain.ErrSchemaInvalid.
func DecodeAnalysis(raw string) (domain.AnalysisResult, error) {
	var p rawAnalysis
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&p); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: decode analysis: %v", domain.ErrSchemaInvalid, err)
	}
	if err := getValidator().Struct(p); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fields := make([]string, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, fe.Namespace()+":"+fe.Tag())
			}
			return domain.AnalysisResult{}, fmt.Errorf("%w: %s", domain.ErrSchemaInvalid, strings.Join(fields, ","))
		}
		return domain.AnalysisResult{}, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	s := p.SectionScores
	return domain.AnalysisResult{
		OverallScore: toScore(*p.OverallScore),
		SectionScores: domain.SectionScores{
			ProfessionalSummary: toScore(*s.ProfessionalSummary),
			WorkExperience:      toScore(*s.WorkExperience),
			Skills:              toScore(*s.Skills),
			Education:           toScore(*s.Education),
			Format:              toScore(*s.Format),
		},
		Strengths:    p.Strengths,
		Improvements: p.Improvements,
		ATSTips:      p.ATSTips,
	}, nil
}

func toScore(f float64) int { return int(math.Round(f)) }
