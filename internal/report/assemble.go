package report

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"reach/gate/internal/domain"
	"reach/gate/internal/exception"
	"reach/gate/internal/guard"
	"reach/gate/internal/policy"
	"reach/gate/internal/provider"
)

// BuildInput bundles everything the report assembler needs from earlier
// stages of the driver pipeline (§4.9 step 7).
type BuildInput struct {
	Policy         policy.Policy
	Provider       string
	EventName      string
	Targets        []provider.ReviewTarget
	GuardResult    guard.Result
	ApprovalCount  int
	HasApprovals   bool
	DomainResult   *domain.EngineResult // nil when policy is not v3-enabled
	ExceptionResult *exception.Result   // nil when domain engine did not run
	EvidenceHashes map[string]string
	CorrelationID  string
	PolicyPath     string
	GeneratedAt    time.Time
}

// Build assembles the final Report (§4.9 step 7).
func Build(in BuildInput) Report {
	findings := append([]guard.Finding{}, in.GuardResult.Findings...)

	var selectedDomains []string
	var shadowDecisions []ShadowDomainDecision
	var exceptionsApplied []exception.Applied

	if in.DomainResult != nil {
		retained := in.DomainResult.AllFindings
		if in.ExceptionResult != nil {
			retained = in.ExceptionResult.Findings
			exceptionsApplied = in.ExceptionResult.ExceptionsApplied
		}
		retainedByDomain := make(map[policy.Domain][]domain.ShadowFinding)
		for _, f := range retained {
			retainedByDomain[f.Domain] = append(retainedByDomain[f.Domain], f)
		}
		for _, d := range in.DomainResult.SelectedDomains {
			selectedDomains = append(selectedDomains, string(d))
			shadowDecisions = append(shadowDecisions, ShadowDomainDecision{
				Domain:   string(d),
				Score:    in.DomainResult.Evaluations[d].Score,
				Decision: in.DomainResult.DomainDecisions[d],
				Findings: retainedByDomain[d],
			})
		}
	}

	decision := "pass"
	if hasBlockFinding(findings) {
		decision = "block"
	} else if len(findings) > 0 {
		decision = "warn"
	}
	if in.DomainResult != nil && severityOutranks(in.DomainResult.Decision, decision) {
		decision = in.DomainResult.Decision
	}

	targets := make([]RedactedTarget, 0, len(in.Targets))
	redaction := in.Policy.Report.RedactionMode
	for _, t := range in.Targets {
		rt := RedactedTarget{
			ReferenceID: t.ReferenceID,
			Source:      string(t.Source),
			AuthorLogin: t.Author.Login,
			AuthorType:  string(t.Author.Type),
		}
		switch {
		case redaction == policy.RedactionHash:
			rt.BodyHash = bodySHA256(t.Body)
		case redaction == policy.RedactionExcerpt || (redaction == "" && !in.Policy.Report.IncludeBodies):
			rt.BodyExcerpt = excerpt(t.Body, 200)
		case in.Policy.Report.IncludeBodies:
			rt.Body = t.Body
		default:
			rt.BodyHash = bodySHA256(t.Body)
		}
		targets = append(targets, rt)
	}

	highestAiScore := in.GuardResult.HighestScore

	return Report{
		SchemaVersion:        SchemaVersion,
		Timestamp:            in.GeneratedAt,
		Provider:             in.Provider,
		EventName:            in.EventName,
		PolicyVersion:        in.Policy.Version,
		Enforcement:          string(in.Policy.Enforcement),
		EnforcementStage:     string(in.Policy.EnforcementStage),
		Decision:             decision,
		SelectedDomains:      selectedDomains,
		TargetsScanned:       len(in.Targets),
		HighestAiScore:       highestAiScore,
		HumanApprovals:       in.ApprovalCount,
		Findings:             findings,
		ShadowDecisions:      shadowDecisions,
		ExceptionsApplied:    exceptionsApplied,
		Targets:              targets,
		EvidenceHashes:       in.EvidenceHashes,
		AccessibilitySummary: buildAccessibilitySummary(decision, len(findings)+len(flattenShadow(shadowDecisions))),
		CorrelationID:        in.CorrelationID,
		PolicyPath:           in.PolicyPath,
	}
}

func flattenShadow(decisions []ShadowDomainDecision) []domain.ShadowFinding {
	var out []domain.ShadowFinding
	for _, d := range decisions {
		out = append(out, d.Findings...)
	}
	return out
}

func hasBlockFinding(findings []guard.Finding) bool {
	for _, f := range findings {
		if f.Severity == guard.SeverityBlock {
			return true
		}
	}
	return false
}

func severityOutranks(candidate, current string) bool {
	rank := map[string]int{"pass": 0, "warn": 1, "block": 2}
	return rank[candidate] > rank[current]
}

func bodySHA256(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func excerpt(body string, max int) string {
	if len(body) <= max {
		return body
	}
	return body[:max] + "..."
}
