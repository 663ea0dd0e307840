package guard

import (
	"context"
	"errors"
	"testing"

	"reach/gate/internal/policy"
	"reach/gate/internal/provider"
)

type fakeProvider struct {
	pullContext   provider.PullContext
	hasPullContext bool
	tokenEnvVar   string
	count         int
	err           error
}

func (f *fakeProvider) Name() string             { return "fake" }
func (f *fakeProvider) SupportedEvents() []string { return nil }
func (f *fakeProvider) ExtractTargets(string, map[string]any, provider.PolicyContext) provider.ExtractResult {
	return provider.ExtractResult{}
}
func (f *fakeProvider) ExtractPullContext(string, map[string]any) (provider.PullContext, bool) {
	return f.pullContext, f.hasPullContext
}
func (f *fakeProvider) FetchHumanApprovalCount(context.Context, provider.PullContext, provider.RetryConfig, []string, string) (int, error) {
	return f.count, f.err
}
func (f *fakeProvider) ApprovalTokenEnvVar() string { return f.tokenEnvVar }

func TestEvaluateApprovalsSkippedWhenPolicyDoesNotRequireThem(t *testing.T) {
	p := policy.Policy{MinHumanApprovals: 0}
	out := EvaluateApprovals(context.Background(), p, &fakeProvider{}, "pull_request", nil, nil, nil)
	if !out.Skipped || out.Finding != nil {
		t.Fatalf("expected skip, got %+v", out)
	}
}

func TestEvaluateApprovalsPullContextMissing(t *testing.T) {
	p := policy.Policy{MinHumanApprovals: 1}
	out := EvaluateApprovals(context.Background(), p, &fakeProvider{hasPullContext: false}, "issue_comment", nil, nil, nil)
	if out.Finding == nil || out.Finding.Code != CodePullContextMissing {
		t.Fatalf("expected GUARD_PULL_CONTEXT_MISSING, got %+v", out)
	}
	if out.Finding.Severity != SeverityBlock {
		t.Fatalf("expected block severity, got %s", out.Finding.Severity)
	}
}

func TestEvaluateApprovalsMissingToken(t *testing.T) {
	p := policy.Policy{MinHumanApprovals: 1}
	fp := &fakeProvider{hasPullContext: true, tokenEnvVar: "GITHUB_TOKEN"}
	out := EvaluateApprovals(context.Background(), p, fp, "pull_request", nil, nil, map[string]string{})
	if out.Finding == nil || out.Finding.Code != CodeApprovalsUnverified {
		t.Fatalf("expected GUARD_APPROVALS_UNVERIFIED, got %+v", out)
	}
	if out.Finding.Severity != SeverityBlock {
		t.Fatalf("expected block severity, got %s", out.Finding.Severity)
	}
}

func TestEvaluateApprovalsProviderErrorMapsToFinding(t *testing.T) {
	p := policy.Policy{MinHumanApprovals: 1}
	fp := &fakeProvider{
		hasPullContext: true, tokenEnvVar: "GITHUB_TOKEN",
		err: &provider.ApprovalError{Kind: provider.ErrKindRateLimited, Message: "rate limited after retries"},
	}
	out := EvaluateApprovals(context.Background(), p, fp, "pull_request", nil, nil, map[string]string{"GITHUB_TOKEN": "x"})
	if out.Finding == nil || out.Finding.Code != CodeApprovalsRateLimited {
		t.Fatalf("expected GUARD_APPROVALS_RATE_LIMITED, got %+v", out)
	}
	if out.Finding.Severity != SeverityBlock {
		t.Fatalf("expected block severity, got %s", out.Finding.Severity)
	}
}

func TestEvaluateApprovalsGenericErrorMapsToFetchError(t *testing.T) {
	p := policy.Policy{MinHumanApprovals: 1}
	fp := &fakeProvider{
		hasPullContext: true, tokenEnvVar: "GITHUB_TOKEN",
		err: errors.New("boom"),
	}
	out := EvaluateApprovals(context.Background(), p, fp, "pull_request", nil, nil, map[string]string{"GITHUB_TOKEN": "x"})
	if out.Finding == nil || out.Finding.Code != CodeApprovalsFetchError {
		t.Fatalf("expected GUARD_APPROVALS_FETCH_ERROR, got %+v", out)
	}
	if out.Finding.Severity != SeverityBlock {
		t.Fatalf("expected block severity, got %s", out.Finding.Severity)
	}
}

func TestEvaluateApprovalsInsufficientCount(t *testing.T) {
	p := policy.Policy{MinHumanApprovals: 2}
	fp := &fakeProvider{hasPullContext: true, tokenEnvVar: "GITHUB_TOKEN", count: 1}
	out := EvaluateApprovals(context.Background(), p, fp, "pull_request", nil, nil, map[string]string{"GITHUB_TOKEN": "x"})
	if out.Finding == nil || out.Finding.Code != CodeHumanApprovals {
		t.Fatalf("expected GUARD_HUMAN_APPROVALS, got %+v", out)
	}
	if out.Finding.Severity != SeverityBlock {
		t.Fatalf("expected block severity, got %s", out.Finding.Severity)
	}
}

func TestEvaluateApprovalsSufficientCountNoFinding(t *testing.T) {
	p := policy.Policy{MinHumanApprovals: 2}
	fp := &fakeProvider{hasPullContext: true, tokenEnvVar: "GITHUB_TOKEN", count: 3}
	out := EvaluateApprovals(context.Background(), p, fp, "pull_request", nil, nil, map[string]string{"GITHUB_TOKEN": "x"})
	if out.Finding != nil {
		t.Fatalf("expected no finding, got %+v", out.Finding)
	}
	if out.Count != 3 {
		t.Fatalf("expected count 3, got %d", out.Count)
	}
}
