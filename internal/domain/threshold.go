package domain

import (
	"strings"

	"reach/gate/internal/policy"
)

// thresholdFinding emits the §4.7 block/warn threshold finding for a
// selected domain's score, or nil if neither threshold is crossed.
func thresholdFinding(p policy.Policy, d policy.Domain, score float64) *ShadowFinding {
	th, ok := p.Thresholds[d]
	if !ok {
		return nil
	}
	name := strings.ToUpper(string(d))
	switch {
	case score >= th.BlockAt:
		return &ShadowFinding{
			Code: "SHADOW_" + name + "_RISK_BLOCK_THRESHOLD", Domain: d, Severity: SeverityHigh,
			Message:     "domain score crossed the block threshold",
			Remediation: "address the findings driving this domain's score before merging",
			Details:     map[string]any{"score": score, "blockAt": th.BlockAt},
		}
	case score >= th.WarnAt:
		return &ShadowFinding{
			Code: "SHADOW_" + name + "_RISK_WARN_THRESHOLD", Domain: d, Severity: SeverityMedium,
			Message:     "domain score crossed the warn threshold",
			Remediation: "review the findings driving this domain's score",
			Details:     map[string]any{"score": score, "warnAt": th.WarnAt},
		}
	default:
		return nil
	}
}
