package usecase

import (
	"math"

	"github.com/Buringskul/cv-feedback-bot/internal/domain"
)

// ReconcilePolicy holds the thresholds used to align an LLM's overall score
// with its own section scores.
type ReconcilePolicy struct {
	// BoostMinOverall is the lowest overall score for which a missing
	// professional summary is back-filled.
	BoostMinOverall int
	// BoostCap is the highest value a back-filled summary score may take.
	BoostCap int
	// Tolerance is the largest accepted gap between overall and 5x the section sum.
	Tolerance int
}

// DefaultReconcilePolicy mirrors the scoring rubric: five sections of 0-20, overall = sum*5.
var DefaultReconcilePolicy = ReconcilePolicy{BoostMinOverall: 80, BoostCap: 20, Tolerance: 5}

// Adjustments describes what Apply changed.
type Adjustments struct {
	SummaryBoosted  bool
	OverallReplaced bool
}

// Reconcile applies DefaultReconcilePolicy.
func Reconcile(r domain.AnalysisResult) domain.AnalysisResult {
	out, _ := DefaultReconcilePolicy.Apply(r)
	return out
}

// Apply returns r with the summary back-fill and the overall consistency
// correction applied. It is pure and never fails.
func (p ReconcilePolicy) Apply(r domain.AnalysisResult) (domain.AnalysisResult, Adjustments) {
	var adj Adjustments
	sectionSum := r.SectionScores.Sum()
	targetSum := roundHalfUp(float64(r.OverallScore) / 5)

	if r.SectionScores.ProfessionalSummary == 0 && r.OverallScore >= p.BoostMinOverall && targetSum > sectionSum {
		r.SectionScores.ProfessionalSummary = min(p.BoostCap, targetSum-sectionSum)
		adj.SummaryBoosted = true
	}

	calculated := r.SectionScores.Sum() * 5
	if abs(r.OverallScore-calculated) > p.Tolerance {
		r.OverallScore = calculated
		adj.OverallReplaced = true
	}
	return r, adj
}

func roundHalfUp(x float64) int { return int(math.Floor(x + 0.5)) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
