// Package guard implements the guard evaluator (component C5): rule
// compilation and safety checking, per-target author/rule/disclosure/score
// evaluation, and the policy-level pass/warn/block outcome decision.
package guard

import (
	"regexp"
	"strings"

	"reach/gate/internal/policy"
	"reach/gate/internal/provider"
)

// TargetEvaluation is the per-target outcome of running guard rules
// against one ReviewTarget.
type TargetEvaluation struct {
	Target   provider.ReviewTarget
	Score    float64
	Findings []Finding
}

// Result is the guard evaluator's output (§4.5).
type Result struct {
	TargetEvaluations []TargetEvaluation
	Findings          []Finding
	HighestScore      float64
	Decision          string // pass | warn | block, per the policy-level rule in §4.5
}

type compiledRule struct {
	rule policy.Rule
	re   *regexp.Regexp
}

// CompileRules compiles every rule once; failures propagate as governance
// errors (E_INVALID_RULE_REGEX / E_UNSAFE_RULE_REGEX), matching §4.5's
// "before any evaluation" requirement.
func CompileRules(rules []policy.Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := CompileRule(r.Pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, compiledRule{rule: r, re: re})
	}
	return out, nil
}

// Evaluate runs the guard evaluator over targets under p (§4.5).
func Evaluate(p policy.Policy, targets []provider.ReviewTarget) (Result, error) {
	compiled, err := CompileRules(p.Rules)
	if err != nil {
		return Result{}, err
	}

	allowed := normalizeSet(p.AllowedAuthors)
	blocked := normalizeSet(p.BlockedAuthors)

	var result Result
	for _, target := range targets {
		te := evaluateTarget(p, target, compiled, allowed, blocked)
		result.TargetEvaluations = append(result.TargetEvaluations, te)
		result.Findings = append(result.Findings, te.Findings...)
		if te.Score > result.HighestScore {
			result.HighestScore = te.Score
		}
	}

	result.Decision = outcomeDecision(p, result.Findings)
	return result, nil
}

func evaluateTarget(p policy.Policy, target provider.ReviewTarget, rules []compiledRule, allowed, blocked map[string]bool) TargetEvaluation {
	login := strings.ToLower(strings.TrimSpace(target.Author.Login))
	te := TargetEvaluation{Target: target}

	if allowed[login] {
		return te
	}
	if blocked[login] {
		te.Findings = append(te.Findings, Finding{
			Code: CodeBlockedAuthor, Severity: SeverityBlock,
			Message: "author " + target.Author.Login + " is blocked by policy",
			TargetReferenceID: target.ReferenceID,
		})
		return te
	}
	if p.BlockBotAuthors && target.Author.Type == provider.AuthorBot {
		te.Findings = append(te.Findings, Finding{
			Code: CodeBotBlocked, Severity: SeverityBlock,
			Message: "bot authors are blocked by policy",
			TargetReferenceID: target.ReferenceID,
		})
		return te
	}

	var score float64
	for _, cr := range rules {
		if !cr.re.MatchString(target.Body) {
			continue
		}
		switch cr.rule.Action {
		case policy.RuleActionBlock:
			te.Findings = append(te.Findings, Finding{
				Code: CodeRuleBlock, Severity: SeverityBlock,
				Message: "rule \"" + cr.rule.Name + "\" matched",
				TargetReferenceID: target.ReferenceID,
				Details: map[string]any{"rule": cr.rule.Name},
			})
		case policy.RuleActionScore:
			w := cr.rule.Weight
			if w == 0 {
				w = 0.25
			}
			score += w
		}
	}
	if score > 1 {
		score = 1
	}
	te.Score = score

	if score >= p.DisclosureRequiredScore && !containsFold(target.Body, p.DisclosureTag) {
		te.Findings = append(te.Findings, Finding{
			Code: CodeDisclosureRequired, Severity: SeverityBlock,
			Message: "AI-generated content disclosure tag is required but missing",
			TargetReferenceID: target.ReferenceID,
			Details: map[string]any{"aiScore": score},
		})
	}
	if score > p.MaxAiScore {
		te.Findings = append(te.Findings, Finding{
			Code: CodeAIScoreExceeded, Severity: SeverityBlock,
			Message: "AI score exceeds policy maximum",
			TargetReferenceID: target.ReferenceID,
			Details: map[string]any{"aiScore": score, "maxAiScore": p.MaxAiScore},
		})
	}

	return te
}

func outcomeDecision(p policy.Policy, findings []Finding) string {
	hasBlock := false
	for _, f := range findings {
		if f.Severity == SeverityBlock {
			hasBlock = true
		}
	}
	if hasBlock && p.Enforcement == policy.EnforcementBlock {
		return "block"
	}
	if len(findings) > 0 {
		return "warn"
	}
	return "pass"
}

func containsFold(body, tag string) bool {
	if tag == "" {
		return true
	}
	return strings.Contains(strings.ToLower(body), strings.ToLower(tag))
}

func normalizeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[strings.ToLower(strings.TrimSpace(i))] = true
	}
	return out
}
