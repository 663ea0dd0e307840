package domain

import (
	"fmt"
	"sort"

	"reach/gate/internal/policy"
)

// EngineResult is the domain engine's full output (§4.7), ready for the
// report assembler (C8) to consume.
type EngineResult struct {
	SelectedDomains []policy.Domain
	Evaluations     map[policy.Domain]DomainEvaluation
	AllFindings     []ShadowFinding
	DomainDecisions map[policy.Domain]string
	Decision        string
}

// Evaluate runs the seven-domain risk engine over ctx under p. Callers
// should only invoke this when p.V3Enabled(); the engine itself does not
// check this, since skipping it entirely is the caller's decision (§4.9).
func Evaluate(p policy.Policy, ctx EvaluationContext) EngineResult {
	baseFindings := make(map[policy.Domain][]ShadowFinding, len(policy.AllDomains))
	baseScores := make(map[policy.Domain]float64, len(policy.AllDomains))
	rankingScores := make(map[policy.Domain]float64, len(policy.AllDomains))

	for _, d := range policy.AllDomains {
		findings, score := runProbes(d, ctx.Corpus)
		findings = append(findings, guardMappedFindings(d, ctx.GuardFindings)...)
		baseFindings[d] = findings
		baseScores[d] = score
		rankingScores[d] = clamp0to100(score + rankingAugmentation(d, ctx))
	}

	selected := selectDomains(p, ctx, rankingScores)

	evaluations := make(map[policy.Domain]DomainEvaluation, len(selected))
	var allFindings []ShadowFinding
	domainDecisions := make(map[policy.Domain]string, len(selected))
	stage := p.EnforcementStage

	overallBlock := false
	overallWarn := false

	for _, d := range selected {
		findings := append([]ShadowFinding{}, baseFindings[d]...)
		if tf := thresholdFinding(p, d, baseScores[d]); tf != nil {
			findings = append(findings, *tf)
		}
		for i := range findings {
			findings[i] = applySeverityOverride(p, findings[i])
		}

		domainBlock := false
		for _, f := range findings {
			if effectiveBlocks(stage, f) {
				domainBlock = true
				overallBlock = true
			}
		}
		if len(findings) > 0 {
			overallWarn = true
		}

		decision := "pass"
		switch {
		case domainBlock:
			decision = "block"
		case len(findings) > 0:
			decision = "warn"
		}
		domainDecisions[d] = decision

		evaluations[d] = DomainEvaluation{
			Domain:    d,
			Score:     baseScores[d],
			Rationale: fmt.Sprintf("%d finding(s) from corpus probes and guard-mapped signals; score %.1f", len(findings), baseScores[d]),
			Findings:  findings,
		}
		allFindings = append(allFindings, findings...)
	}

	order := effectiveTieBreakOrder(p.CoveragePolicy.TieBreakOrder)
	sort.SliceStable(allFindings, func(i, j int) bool {
		oi, oj := tieBreakIndex(allFindings[i].Domain, order), tieBreakIndex(allFindings[j].Domain, order)
		if oi != oj {
			return oi < oj
		}
		return allFindings[i].Code < allFindings[j].Code
	})

	overall := "pass"
	switch {
	case overallBlock:
		overall = "block"
	case overallWarn:
		overall = "warn"
	}

	return EngineResult{
		SelectedDomains: selected,
		Evaluations:     evaluations,
		AllFindings:     allFindings,
		DomainDecisions: domainDecisions,
		Decision:        overall,
	}
}
