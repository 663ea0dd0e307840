package domain

import (
	"strings"

	"reach/gate/internal/policy"
)

// applySeverityOverride replaces f's severity with the domain's
// checkSeverities override for f.Code, if one exists (§4.7).
func applySeverityOverride(p policy.Policy, f ShadowFinding) ShadowFinding {
	rule, ok := p.DomainRules[f.Domain]
	if !ok {
		return f
	}
	if override, ok := rule.CheckSeverities[f.Code]; ok {
		f.Severity = Severity(override)
	}
	return f
}

// effectiveBlocks reports whether f should be treated as blocking under the
// given enforcement stage (§4.7).
func effectiveBlocks(stage policy.EnforcementStage, f ShadowFinding) bool {
	switch stage {
	case policy.StageWhisper:
		return f.Severity == SeverityCritical && (f.Domain == policy.DomainSecurity || strings.HasPrefix(f.Code, "SHADOW_RUNTIME_"))
	case policy.StageOath:
		return f.Severity == SeverityHigh || f.Severity == SeverityCritical
	case policy.StageThrone:
		return f.Severity != SeverityLow
	default:
		// No stage configured: behave like "oath", the middle ground.
		return f.Severity == SeverityHigh || f.Severity == SeverityCritical
	}
}
