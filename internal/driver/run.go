package driver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"reach/gate/internal/domain"
	"reach/gate/internal/exception"
	gateerrors "reach/gate/internal/errors"
	"reach/gate/internal/guard"
	"reach/gate/internal/policy"
	"reach/gate/internal/provider"
	"reach/gate/internal/report"
)

// Result is what Run returns alongside its error: the assembled report
// (zero-valued on a governance failure, which Run reports through its error
// return — §7 tier 1, the only case report.Report is not populated) and the
// process exit code.
type Result struct {
	Report   report.Report
	ExitCode int
}

// Run executes the full §4.9 driver sequence. It never touches os.Args or
// reads the environment itself; Options already carries every input.
func Run(ctx context.Context, o Options) (Result, error) {
	log := o.logger()

	resolved, err := resolvePolicySource(o)
	if err != nil {
		log.Log(map[string]any{"stage": "policy_loaded", "ok": false, "error": err.Error()})
		return Result{}, err
	}
	p := resolved.Policy
	log.Log(map[string]any{"stage": "policy_loaded", "ok": true, "version": p.Version})

	prov, err := provider.Get(o.Provider, o.HTTPClient)
	if err != nil {
		return Result{}, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "resolve provider")
	}

	var driverFindings []guard.Finding

	eventBytes, tooLarge, err := loadEvent(o, p.Runtime)
	if err != nil {
		return Result{}, err
	}
	if tooLarge != nil {
		driverFindings = append(driverFindings, *tooLarge)
	}

	var payload map[string]any
	if tooLarge == nil {
		var malformed *guard.Finding
		payload, malformed = parsePayload(eventBytes)
		if malformed != nil {
			driverFindings = append(driverFindings, *malformed)
			payload = map[string]any{}
		}
	} else {
		payload = map[string]any{}
	}

	if f := checkSupportedEvent(prov, o.EventName, p.Runtime); f != nil {
		driverFindings = append(driverFindings, *f)
	}

	policyCtx := provider.PolicyContext{
		ScanPRBody: p.ScanPRBody, ScanReview: p.ScanReview,
		ScanComment: p.ScanComment, ScanIssueComment: p.ScanIssueComment,
	}
	extracted := prov.ExtractTargets(o.EventName, payload, policyCtx)
	if p.Runtime.FailOnMalformedPayload && len(extracted.MalformedReasons) > 0 {
		driverFindings = append(driverFindings, guard.Finding{
			Code:     guard.CodeMalformedEvent,
			Severity: guard.SeverityBlock,
			Message:  "event payload failed provider-level structural checks",
			Details:  map[string]any{"reasons": extracted.MalformedReasons},
		})
	}

	targets, truncatedFindings := truncateTargets(extracted.Targets, p.Runtime.MaxBodyChars)
	driverFindings = append(driverFindings, truncatedFindings...)

	log.Log(map[string]any{"stage": "targets_extracted", "count": len(targets)})

	guardResult, err := guard.Evaluate(p, targets)
	if err != nil {
		return Result{}, err
	}

	approvalOutcome := guard.EvaluateApprovals(ctx, p, prov, o.EventName, payload, p.AllowedAuthors, o.EnvTokens)
	log.Log(map[string]any{"stage": "approvals_fetched", "count": approvalOutcome.Count, "skipped": approvalOutcome.Skipped})

	allGuardFindings := append([]guard.Finding{}, driverFindings...)
	allGuardFindings = append(allGuardFindings, guardResult.Findings...)
	if approvalOutcome.Finding != nil {
		allGuardFindings = append(allGuardFindings, *approvalOutcome.Finding)
	}

	var domainResult *domain.EngineResult
	var exceptionResult *exception.Result
	if p.V3Enabled() {
		evalCtx := domain.BuildEvaluationContext(payload, targets, allGuardFindings)
		dr := domain.Evaluate(p, evalCtx)
		domainResult = &dr

		exceptionRecords, excErr := loadExceptions(o.ExceptionsPath)
		if excErr != nil {
			return Result{}, excErr
		}
		er := exception.Filter(dr.AllFindings, exceptionRecords, o.now())
		exceptionResult = &er
		log.Log(map[string]any{"stage": "domain_scored", "decision": dr.Decision, "domains": len(dr.SelectedDomains)})
	}

	if o.Redact {
		p.Report.RedactionMode = policy.RedactionHash
		p.Report.IncludeBodies = false
	}

	correlationID := o.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	evidenceHashes := map[string]string{"correlationId": correlationID}
	for k, v := range resolved.Evidence {
		evidenceHashes[k] = v
	}
	eventSum := sha256.Sum256(eventBytes)
	evidenceHashes["event"] = hex.EncodeToString(eventSum[:])

	rpt := report.Build(report.BuildInput{
		Policy:          p,
		Provider:        prov.Name(),
		EventName:       o.EventName,
		Targets:         targets,
		GuardResult:     guard.Result{TargetEvaluations: guardResult.TargetEvaluations, Findings: allGuardFindings, HighestScore: guardResult.HighestScore, Decision: guardResult.Decision},
		ApprovalCount:   approvalOutcome.Count,
		HasApprovals:    !approvalOutcome.Skipped,
		DomainResult:    domainResult,
		ExceptionResult: exceptionResult,
		EvidenceHashes:  evidenceHashes,
		CorrelationID:   correlationID,
		PolicyPath:      resolved.PolicyPath,
		GeneratedAt:     o.now(),
	})

	if o.ReplayReportPath != "" {
		rpt = applyReplayComparison(rpt, o.ReplayReportPath)
	}

	if o.ReportPath != "" {
		format := o.ReportFormat
		if format == "" {
			format = report.FormatJSON
		}
		if err := report.Write(o.ReportPath, format, rpt); err != nil {
			return Result{}, gateerrors.Wrap(err, gateerrors.CodeInternal, "write report")
		}
	}

	exitCode := 0
	if rpt.Decision == "block" {
		exitCode = 1
	}
	log.Log(map[string]any{"stage": "report_written", "decision": rpt.Decision, "exitCode": exitCode})

	return Result{Report: rpt, ExitCode: exitCode}, nil
}
