package guard

import (
	"testing"

	"reach/gate/internal/policy"
	"reach/gate/internal/provider"
)

func targetFrom(login string, authorType provider.AuthorType, body string) provider.ReviewTarget {
	return provider.ReviewTarget{
		Source:      provider.SourcePRBody,
		ReferenceID: "pr-body",
		Author:      provider.Author{Login: login, Type: authorType},
		Body:        body,
	}
}

func basePolicy() policy.Policy {
	return policy.Policy{
		Enforcement:             policy.EnforcementBlock,
		MaxAiScore:              0.9,
		DisclosureRequiredScore: 0.5,
		DisclosureTag:           "[ai-assisted]",
	}
}

func TestEvaluateAllowedAuthorSkipsAllChecks(t *testing.T) {
	p := basePolicy()
	p.AllowedAuthors = []string{"trusted-bot"}
	p.BlockedAuthors = []string{"trusted-bot"} // would block if not allowlisted first
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("trusted-bot", provider.AuthorUser, "anything")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Findings) != 0 {
		t.Fatalf("expected no findings for allowlisted author, got %+v", result.Findings)
	}
	if result.Decision != "pass" {
		t.Fatalf("expected pass decision, got %s", result.Decision)
	}
}

func TestEvaluateBlockedAuthor(t *testing.T) {
	p := basePolicy()
	p.BlockedAuthors = []string{"bad-actor"}
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("bad-actor", provider.AuthorUser, "hello")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Findings) != 1 || result.Findings[0].Code != CodeBlockedAuthor {
		t.Fatalf("expected GUARD_BLOCKED_AUTHOR, got %+v", result.Findings)
	}
	if result.Decision != "block" {
		t.Fatalf("expected block decision, got %s", result.Decision)
	}
}

func TestEvaluateBotBlocked(t *testing.T) {
	p := basePolicy()
	p.BlockBotAuthors = true
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("ci[bot]", provider.AuthorBot, "hello")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Findings) != 1 || result.Findings[0].Code != CodeBotBlocked {
		t.Fatalf("expected GUARD_BOT_BLOCKED, got %+v", result.Findings)
	}
}

func TestEvaluateRuleBlock(t *testing.T) {
	p := basePolicy()
	p.Rules = []policy.Rule{{Name: "secret-leak", Pattern: `api[_-]key`, Action: policy.RuleActionBlock}}
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("someone", provider.AuthorUser, "here is my api_key for you")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Findings) != 1 || result.Findings[0].Code != CodeRuleBlock {
		t.Fatalf("expected GUARD_RULE_BLOCK, got %+v", result.Findings)
	}
}

func TestEvaluateDisclosureRequired(t *testing.T) {
	p := basePolicy()
	p.Rules = []policy.Rule{{Name: "ai-marker", Pattern: `generated by`, Action: policy.RuleActionScore, Weight: 0.6}}
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("someone", provider.AuthorUser, "this text was generated by a model")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	found := false
	for _, f := range result.Findings {
		if f.Code == CodeDisclosureRequired {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected GUARD_DISCLOSURE_REQUIRED, got %+v", result.Findings)
	}
}

func TestEvaluateDisclosureTagSuppressesFinding(t *testing.T) {
	p := basePolicy()
	p.Rules = []policy.Rule{{Name: "ai-marker", Pattern: `generated by`, Action: policy.RuleActionScore, Weight: 0.6}}
	result, err := Evaluate(p, []provider.ReviewTarget{
		targetFrom("someone", provider.AuthorUser, "this text was generated by a model [ai-assisted]"),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, f := range result.Findings {
		if f.Code == CodeDisclosureRequired {
			t.Fatalf("disclosure tag present, should not have raised GUARD_DISCLOSURE_REQUIRED: %+v", result.Findings)
		}
	}
}

func TestEvaluateAiScoreExceeded(t *testing.T) {
	p := basePolicy()
	p.DisclosureTag = ""
	p.Rules = []policy.Rule{
		{Name: "a", Pattern: `alpha`, Action: policy.RuleActionScore, Weight: 0.5},
		{Name: "b", Pattern: `beta`, Action: policy.RuleActionScore, Weight: 0.5},
	}
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("someone", provider.AuthorUser, "alpha and beta both present")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	found := false
	for _, f := range result.Findings {
		if f.Code == CodeAIScoreExceeded {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected GUARD_AI_SCORE_EXCEEDED, got %+v", result.Findings)
	}
	if result.HighestScore != 1 {
		t.Fatalf("expected score clamped to 1, got %f", result.HighestScore)
	}
}

func TestEvaluateUnsafeRegexRejectedBeforeEvaluation(t *testing.T) {
	p := basePolicy()
	p.Rules = []policy.Rule{{Name: "evil", Pattern: `(a+)+$`, Action: policy.RuleActionBlock}}
	_, err := Evaluate(p, []provider.ReviewTarget{targetFrom("someone", provider.AuthorUser, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa!")})
	if err == nil {
		t.Fatalf("expected unsafe-regex error, got nil")
	}
}

func TestEvaluateHighestScoreBounded(t *testing.T) {
	p := basePolicy()
	p.Rules = []policy.Rule{{Name: "x", Pattern: `x`, Action: policy.RuleActionScore, Weight: 5}}
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("someone", provider.AuthorUser, "xxxxx")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.HighestScore < 0 || result.HighestScore > 1 {
		t.Fatalf("expected highestScore in [0,1], got %f", result.HighestScore)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	p := basePolicy()
	p.Rules = []policy.Rule{{Name: "x", Pattern: `secret`, Action: policy.RuleActionScore, Weight: 0.4}}
	targets := []provider.ReviewTarget{targetFrom("someone", provider.AuthorUser, "a secret value")}

	r1, err := Evaluate(p, targets)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	r2, err := Evaluate(p, append([]provider.ReviewTarget{}, targets...))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if r1.HighestScore != r2.HighestScore || r1.Decision != r2.Decision || len(r1.Findings) != len(r2.Findings) {
		t.Fatalf("expected evaluate to be pure, got %+v vs %+v", r1, r2)
	}
}

func TestEvaluateNoFindingsPasses(t *testing.T) {
	p := basePolicy()
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("someone", provider.AuthorUser, "perfectly normal text")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Decision != "pass" {
		t.Fatalf("expected pass, got %s", result.Decision)
	}
}

func TestEvaluateWarnWhenEnforcementIsWarn(t *testing.T) {
	p := basePolicy()
	p.Enforcement = policy.EnforcementWarn
	p.BlockedAuthors = []string{"bad-actor"}
	result, err := Evaluate(p, []provider.ReviewTarget{targetFrom("bad-actor", provider.AuthorUser, "hello")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Decision != "warn" {
		t.Fatalf("expected warn decision under warn enforcement, got %s", result.Decision)
	}
}
