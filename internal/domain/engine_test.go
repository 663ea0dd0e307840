package domain

import (
	"testing"

	"reach/gate/internal/guard"
	"reach/gate/internal/policy"
	"reach/gate/internal/provider"
)

func testCoveragePolicy() policy.CoveragePolicy {
	return policy.CoveragePolicy{
		Small:  policy.SizeBand{MaxLinesChanged: 50, MaxFilesChanged: 3},
		Medium: policy.SizeBand{MaxLinesChanged: 300, MaxFilesChanged: 15},
	}
}

func TestBuildEvaluationContextConcatenatesCorpusAndFloorsMetrics(t *testing.T) {
	payload := map[string]any{
		"pull_request": map[string]any{
			"title": "Add feature", "body": "Does a thing",
			"changed_files": 3.0, "additions": 10.0, "deletions": -5.0,
		},
	}
	targets := []provider.ReviewTarget{{Body: "pr body text"}}
	ctx := BuildEvaluationContext(payload, targets, nil)

	if ctx.ChangedFiles != 3 {
		t.Fatalf("expected changedFiles=3, got %d", ctx.ChangedFiles)
	}
	if ctx.LinesChanged != 10 {
		t.Fatalf("expected linesChanged floored to 10 (negative deletions treated as 0), got %d", ctx.LinesChanged)
	}
	if ctx.Corpus == "" {
		t.Fatalf("expected non-empty corpus")
	}
}

func TestSelectDomainsRespectsSizeBandCount(t *testing.T) {
	p := policy.Policy{CoveragePolicy: testCoveragePolicy()}
	ctx := EvaluationContext{ChangedFiles: 1, LinesChanged: 10}
	ranking := map[policy.Domain]float64{}
	for _, d := range policy.AllDomains {
		ranking[d] = 0
	}
	selected := selectDomains(p, ctx, ranking)
	if len(selected) != 1 {
		t.Fatalf("expected 1 domain for small band, got %d", len(selected))
	}
}

func TestSelectDomainsFiltersDisabled(t *testing.T) {
	p := policy.Policy{
		CoveragePolicy: testCoveragePolicy(),
		DomainRules: map[policy.Domain]policy.DomainRuleSettings{
			policy.DomainSecurity: {Enabled: false},
		},
	}
	ctx := EvaluationContext{ChangedFiles: 20, LinesChanged: 500}
	ranking := map[policy.Domain]float64{}
	for i, d := range policy.AllDomains {
		ranking[d] = float64(100 - i)
	}
	selected := selectDomains(p, ctx, ranking)
	for _, d := range selected {
		if d == policy.DomainSecurity {
			t.Fatalf("expected disabled security domain to be filtered out, got %v", selected)
		}
	}
}

func TestSelectDomainsTieBreakOrder(t *testing.T) {
	p := policy.Policy{
		CoveragePolicy: policy.CoveragePolicy{
			Small:         policy.SizeBand{MaxLinesChanged: 0, MaxFilesChanged: 0},
			Medium:        policy.SizeBand{MaxLinesChanged: 0, MaxFilesChanged: 0},
			TieBreakOrder: []policy.Domain{policy.DomainAesthetics, policy.DomainValue},
		},
	}
	ctx := EvaluationContext{ChangedFiles: 99, LinesChanged: 999} // forces "large" band, N=3
	ranking := map[policy.Domain]float64{}
	for _, d := range policy.AllDomains {
		ranking[d] = 50 // all tied
	}
	selected := selectDomains(p, ctx, ranking)
	if len(selected) != 3 {
		t.Fatalf("expected 3 domains for large band, got %d", len(selected))
	}
	if selected[0] != policy.DomainAesthetics || selected[1] != policy.DomainValue {
		t.Fatalf("expected tieBreakOrder to put aesthetics, value first, got %v", selected)
	}
}

func TestThresholdFindingBlockVsWarn(t *testing.T) {
	p := policy.Policy{Thresholds: map[policy.Domain]policy.DomainThreshold{
		policy.DomainSecurity: {WarnAt: 30, BlockAt: 70},
	}}
	if f := thresholdFinding(p, policy.DomainSecurity, 80); f == nil || f.Severity != SeverityHigh {
		t.Fatalf("expected block-threshold finding, got %+v", f)
	}
	if f := thresholdFinding(p, policy.DomainSecurity, 50); f == nil || f.Severity != SeverityMedium {
		t.Fatalf("expected warn-threshold finding, got %+v", f)
	}
	if f := thresholdFinding(p, policy.DomainSecurity, 10); f != nil {
		t.Fatalf("expected no threshold finding below warnAt, got %+v", f)
	}
}

func TestEffectiveBlocksPerStage(t *testing.T) {
	critical := ShadowFinding{Domain: policy.DomainSecurity, Severity: SeverityCritical}
	high := ShadowFinding{Domain: policy.DomainAccess, Severity: SeverityHigh}
	low := ShadowFinding{Domain: policy.DomainAesthetics, Severity: SeverityLow}

	if !effectiveBlocks(policy.StageWhisper, critical) {
		t.Fatalf("expected whisper to block critical security finding")
	}
	if effectiveBlocks(policy.StageWhisper, high) {
		t.Fatalf("expected whisper not to block a non-security high finding")
	}
	if !effectiveBlocks(policy.StageOath, high) {
		t.Fatalf("expected oath to block high severity")
	}
	if effectiveBlocks(policy.StageOath, low) {
		t.Fatalf("expected oath not to block low severity")
	}
	if effectiveBlocks(policy.StageThrone, low) {
		t.Fatalf("expected throne not to block low severity")
	}
}

func TestEvaluateEndToEndSecurityBlockViaWhisperStage(t *testing.T) {
	p := policy.Policy{
		CoveragePolicy:   testCoveragePolicy(),
		EnforcementStage: policy.StageWhisper,
		Thresholds: map[policy.Domain]policy.DomainThreshold{
			policy.DomainSecurity: {WarnAt: 20, BlockAt: 40},
		},
	}
	ctx := EvaluationContext{
		ChangedFiles: 1, LinesChanged: 10,
		Corpus: `password: "hunter2hunter2" and verify = false`,
	}
	result := Evaluate(p, ctx)
	if result.Decision != "block" {
		t.Fatalf("expected overall block decision, got %s (findings=%+v)", result.Decision, result.AllFindings)
	}
}

func TestEvaluateSeverityOverride(t *testing.T) {
	p := policy.Policy{
		CoveragePolicy:   testCoveragePolicy(),
		EnforcementStage: policy.StageOath,
		DomainRules: map[policy.Domain]policy.DomainRuleSettings{
			policy.DomainAesthetics: {
				Enabled:         true,
				CheckSeverities: map[string]string{"SHADOW_AESTHETICS_UNRESOLVED_MARKER": "critical"},
			},
		},
	}
	ctx := EvaluationContext{ChangedFiles: 1, LinesChanged: 5, Corpus: "TODO: revisit this"}
	result := Evaluate(p, ctx)

	ev, ok := result.Evaluations[policy.DomainAesthetics]
	if !ok {
		t.Fatalf("expected aesthetics domain selected, got %+v", result.SelectedDomains)
	}
	found := false
	for _, f := range ev.Findings {
		if f.Code == "SHADOW_AESTHETICS_UNRESOLVED_MARKER" {
			found = true
			if f.Severity != SeverityCritical {
				t.Fatalf("expected severity override to critical, got %s", f.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected SHADOW_AESTHETICS_UNRESOLVED_MARKER finding, got %+v", ev.Findings)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	p := policy.Policy{CoveragePolicy: testCoveragePolicy()}
	ctx := BuildEvaluationContext(
		map[string]any{"pull_request": map[string]any{"body": "TODO: fix this later"}},
		nil,
		[]guard.Finding{{Code: guard.CodeApprovalsTimeout, Severity: guard.SeverityWarn}},
	)
	r1 := Evaluate(p, ctx)
	r2 := Evaluate(p, ctx)
	if r1.Decision != r2.Decision || len(r1.AllFindings) != len(r2.AllFindings) {
		t.Fatalf("expected Evaluate to be pure, got %+v vs %+v", r1, r2)
	}
}
