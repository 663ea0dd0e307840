package guard

import (
	"context"
	"errors"
	"fmt"

	"reach/gate/internal/policy"
	"reach/gate/internal/provider"
)

// ApprovalOutcome is the result of running the human-approval stage (§4.6).
type ApprovalOutcome struct {
	Finding *Finding
	Count   int
	Skipped bool // true when the policy requires no human approvals, so the stage did not run
}

// EvaluateApprovals runs the §4.6 human-approval stage: it resolves the pull
// context, checks for a configured token, fetches the approval count through
// the provider, and maps provider errors onto GUARD_APPROVALS_* findings.
func EvaluateApprovals(
	ctx context.Context,
	p policy.Policy,
	prov provider.Provider,
	eventName string,
	payload map[string]any,
	allowedAuthors []string,
	tokenEnv map[string]string,
) ApprovalOutcome {
	if p.MinHumanApprovals <= 0 {
		return ApprovalOutcome{Skipped: true}
	}

	pc, ok := prov.ExtractPullContext(eventName, payload)
	if !ok {
		return ApprovalOutcome{Finding: &Finding{
			Code: CodePullContextMissing, Severity: SeverityBlock,
			Message: "event does not reference a pull or merge request; human approvals cannot be checked",
		}}
	}

	envVar := prov.ApprovalTokenEnvVar()
	token := tokenEnv[envVar]
	if token == "" {
		return ApprovalOutcome{Finding: &Finding{
			Code: CodeApprovalsUnverified, Severity: SeverityBlock,
			Message: fmt.Sprintf("%s unavailable; human approvals could not be verified", envVar),
		}}
	}

	cfg := provider.RetryConfig{
		Enabled:              p.Approvals.Retry.Enabled,
		MaxAttempts:          p.Approvals.Retry.MaxAttempts,
		BaseDelayMs:          p.Approvals.Retry.BaseDelayMs,
		MaxDelayMs:           p.Approvals.Retry.MaxDelayMs,
		JitterRatio:          p.Approvals.Retry.JitterRatio,
		RetryableStatusCodes: p.Approvals.Retry.RetryableStatusCodes,
		FetchTimeoutMs:       p.Approvals.FetchTimeoutMs,
		MaxPages:             p.Approvals.MaxPages,
	}

	count, err := prov.FetchHumanApprovalCount(ctx, pc, cfg, allowedAuthors, token)
	if err != nil {
		return ApprovalOutcome{Finding: approvalErrorFinding(err)}
	}

	if count < p.MinHumanApprovals {
		return ApprovalOutcome{Count: count, Finding: &Finding{
			Code: CodeHumanApprovals, Severity: SeverityBlock,
			Message: fmt.Sprintf("only %d human approval(s); policy requires at least %d", count, p.MinHumanApprovals),
			Details: map[string]any{"count": count, "required": p.MinHumanApprovals},
		}}
	}

	return ApprovalOutcome{Count: count}
}

func approvalErrorFinding(err error) *Finding {
	var ae *provider.ApprovalError
	if !errors.As(err, &ae) {
		return &Finding{Code: CodeApprovalsFetchError, Severity: SeverityBlock, Message: err.Error()}
	}

	code := CodeApprovalsFetchError
	switch ae.Kind {
	case provider.ErrKindTimeout:
		code = CodeApprovalsTimeout
	case provider.ErrKindRateLimited:
		code = CodeApprovalsRateLimited
	case provider.ErrKindRetryExhausted:
		code = CodeApprovalsRetryExhausted
	case provider.ErrKindFetchError, provider.ErrKindHTTPError:
		code = CodeApprovalsFetchError
	}

	return &Finding{
		Code: code, Severity: SeverityBlock, Message: ae.Message,
		Details: map[string]any{"attemptLog": ae.AttemptLog, "kind": string(ae.Kind)},
	}
}
