package domain

import (
	"regexp"

	"reach/gate/internal/guard"
	"reach/gate/internal/policy"
)

// probe is one keyword/regex check run over the corpus for a single domain.
// Patterns here are hand-written and fixed, not author-supplied, so they
// don't go through guard.CompileRule's catastrophic-backtracking check.
type probe struct {
	code        string
	re          *regexp.Regexp
	severity    Severity
	message     string
	remediation string
	weight      float64
}

var domainProbes = map[policy.Domain][]probe{
	policy.DomainSecurity: {
		{
			code: "SHADOW_SECURITY_HARDCODED_SECRET",
			re:   regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*['"][^'"]{8,}['"]`),
			severity: SeverityHigh, weight: 40,
			message:     "corpus appears to contain a hardcoded credential",
			remediation: "remove the literal credential and load it from a secret store or environment variable",
		},
		{
			code: "SHADOW_SECURITY_DANGEROUS_EVAL",
			re:   regexp.MustCompile(`(?i)\beval\s*\(|\bexec\s*\(`),
			severity: SeverityMedium, weight: 25,
			message:     "corpus references eval/exec of dynamic input",
			remediation: "avoid evaluating dynamic strings as code; use a safe parser or allowlist instead",
		},
		{
			code: "SHADOW_SECURITY_TLS_VERIFICATION_DISABLED",
			re:   regexp.MustCompile(`(?i)insecureskipverify\s*[:=]\s*true|verify\s*=\s*false`),
			severity: SeverityCritical, weight: 50,
			message:     "corpus references disabling TLS certificate verification",
			remediation: "never disable certificate verification outside of local test fixtures",
		},
		{
			code: "SHADOW_SECURITY_SQL_CONCATENATION",
			re:   regexp.MustCompile(`(?i)(select|insert|update|delete)\s+.*\+\s*\w|query\s*\+=`),
			severity: SeverityHigh, weight: 35,
			message:     "corpus suggests SQL built by string concatenation",
			remediation: "use parameterized queries instead of concatenating user input into SQL",
		},
	},
	policy.DomainAccess: {
		{
			code: "SHADOW_ACCESS_BROAD_PERMISSION_GRANT",
			re:   regexp.MustCompile(`(?i)chmod\s+777|sudo\s|admin\s*[:=]\s*true|sys:admin`),
			severity: SeverityHigh, weight: 35,
			message:     "corpus references granting broad or administrative permissions",
			remediation: "scope the permission grant to the minimum required and document why it is needed",
		},
		{
			code: "SHADOW_ACCESS_AUTH_BYPASS",
			re:   regexp.MustCompile(`(?i)skip[_-]?auth|bypass[_-]?auth|no[_-]?auth[_-]?check`),
			severity: SeverityCritical, weight: 45,
			message:     "corpus references skipping or bypassing an authorization check",
			remediation: "remove the bypass and route the request through the standard authorization path",
		},
	},
	policy.DomainTesting: {
		{
			code: "SHADOW_TESTING_SKIPPED_TEST",
			re:   regexp.MustCompile(`(?i)\bt\.skip\(|\bxit\(|\bxdescribe\(|skip[_-]?test`),
			severity: SeverityMedium, weight: 25,
			message:     "corpus references a skipped test",
			remediation: "re-enable or delete the skipped test instead of leaving it disabled",
		},
		{
			code: "SHADOW_TESTING_DEFERRED_COVERAGE",
			re:   regexp.MustCompile(`(?i)todo.{0,20}test|fixme.{0,20}test`),
			severity: SeverityLow, weight: 15,
			message:     "corpus defers test coverage to a future change",
			remediation: "add the deferred test coverage before merging, or file a tracked follow-up",
		},
	},
	policy.DomainExecution: {
		{
			code: "SHADOW_EXECUTION_SHELL_INVOCATION",
			re:   regexp.MustCompile(`(?i)os/exec|exec\.command|child_process|subprocess\.`),
			severity: SeverityMedium, weight: 25,
			message:     "corpus references invoking an external shell or subprocess",
			remediation: "validate and escape all arguments passed to the subprocess, or avoid shelling out",
		},
		{
			code: "SHADOW_EXECUTION_UNBOUNDED_LOOP",
			re:   regexp.MustCompile(`(?i)while\s*\(\s*true\s*\)|for\s*\(\s*;\s*;\s*\)|infinite[_-]?loop`),
			severity: SeverityMedium, weight: 25,
			message:     "corpus references an unbounded loop",
			remediation: "bound the loop with a timeout, context cancellation, or an explicit iteration cap",
		},
	},
	policy.DomainScales: {
		{
			code: "SHADOW_SCALES_N_PLUS_ONE",
			re:   regexp.MustCompile(`(?i)for.{0,40}range.{0,40}query|n\+1\s*quer`),
			severity: SeverityMedium, weight: 25,
			message:     "corpus suggests a query issued inside a loop",
			remediation: "batch the query or load the related rows in a single round trip",
		},
		{
			code: "SHADOW_SCALES_UNBOUNDED_FETCH",
			re:   regexp.MustCompile(`(?i)select \*\s+from|fetchall\(`),
			severity: SeverityLow, weight: 15,
			message:     "corpus suggests fetching an unbounded result set",
			remediation: "add pagination or a row limit to the query",
		},
	},
	policy.DomainValue: {
		{
			code: "SHADOW_VALUE_SCOPE_CREEP",
			re:   regexp.MustCompile(`(?i)out[_-]?of[_-]?scope|unrelated[_-]?change`),
			severity: SeverityLow, weight: 15,
			message:     "corpus flags changes outside the described scope",
			remediation: "split unrelated changes into a separate pull request",
		},
		{
			code: "SHADOW_VALUE_UNDOCUMENTED_BREAKING_CHANGE",
			re:   regexp.MustCompile(`(?i)breaking[_-]?change`),
			severity: SeverityMedium, weight: 25,
			message:     "corpus references a breaking change",
			remediation: "document the breaking change and its migration path in the description",
		},
	},
	policy.DomainAesthetics: {
		{
			code: "SHADOW_AESTHETICS_LINT_SUPPRESSION",
			re:   regexp.MustCompile(`(?i)eslint-disable|nolint|#\s*noqa`),
			severity: SeverityLow, weight: 15,
			message:     "corpus references suppressing a linter warning",
			remediation: "fix the underlying lint issue instead of suppressing it",
		},
		{
			code: "SHADOW_AESTHETICS_UNRESOLVED_MARKER",
			re:   regexp.MustCompile(`(?i)\btodo\b|\bfixme\b|\bhack\b`),
			severity: SeverityLow, weight: 10,
			message:     "corpus contains an unresolved TODO/FIXME/HACK marker",
			remediation: "resolve the marker or convert it into a tracked follow-up issue",
		},
	},
}

// runProbes evaluates every probe for d against the corpus, returning
// findings and a bounded [0,100] score.
func runProbes(d policy.Domain, corpus string) ([]ShadowFinding, float64) {
	var findings []ShadowFinding
	score := 0.0
	for _, p := range domainProbes[d] {
		if !p.re.MatchString(corpus) {
			continue
		}
		findings = append(findings, ShadowFinding{
			Code: p.code, Domain: d, Severity: p.severity,
			Message: p.message, Remediation: p.remediation,
		})
		score += p.weight
	}
	return findings, clamp0to100(score)
}

// guardMappedFindings maps selected guard findings onto domain findings
// (§4.7): any GUARD_APPROVALS_* finding contributes to Execution, and a
// malformed event contributes a critical Security finding.
func guardMappedFindings(d policy.Domain, guardFindings []guard.Finding) []ShadowFinding {
	var out []ShadowFinding
	for _, gf := range guardFindings {
		switch {
		case d == policy.DomainExecution && isApprovalFinding(gf.Code):
			out = append(out, ShadowFinding{
				Code: "SHADOW_EXECUTION_APPROVAL_RISK", Domain: d, Severity: SeverityMedium,
				Message:     "human approval verification did not succeed cleanly: " + gf.Message,
				Remediation: "resolve the approval-fetch error and re-run verification before merging",
				Details:     map[string]any{"guardCode": gf.Code},
			})
		case d == policy.DomainSecurity && gf.Code == guard.CodeMalformedEvent:
			out = append(out, ShadowFinding{
				Code: "SHADOW_SECURITY_MALFORMED_EVENT", Domain: d, Severity: SeverityCritical,
				Message:     "the webhook event payload was malformed",
				Remediation: "reject the event upstream and alert on repeated malformed deliveries",
			})
		}
	}
	return out
}

func isApprovalFinding(code string) bool {
	switch code {
	case guard.CodeApprovalsUnverified, guard.CodeApprovalsTimeout, guard.CodeApprovalsRateLimited,
		guard.CodeApprovalsRetryExhausted, guard.CodeApprovalsFetchError:
		return true
	default:
		return false
	}
}

func countBlockingGuardFindings(findings []guard.Finding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == guard.SeverityBlock {
			n++
		}
	}
	return n
}

func countApprovalGuardFindings(findings []guard.Finding) int {
	n := 0
	for _, f := range findings {
		if isApprovalFinding(f.Code) {
			n++
		}
	}
	return n
}
