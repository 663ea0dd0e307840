package domain

import (
	"math"

	"reach/gate/internal/policy"
)

// rankingAugmentation computes the §4.7 ranking-score adjustment added to
// each domain's base score before coverage selection.
func rankingAugmentation(d policy.Domain, ctx EvaluationContext) float64 {
	switch d {
	case policy.DomainSecurity:
		return 6 * float64(countBlockingGuardFindings(ctx.GuardFindings))
	case policy.DomainExecution:
		return 8 * float64(countApprovalGuardFindings(ctx.GuardFindings))
	case policy.DomainScales:
		v := math.Round(float64(ctx.LinesChanged) / 150)
		if v > 20 {
			v = 20
		}
		return v
	case policy.DomainTesting:
		if ctx.LinesChanged >= 300 {
			return 10
		}
		return 0
	default:
		return 0
	}
}
