package driver

import (
	"encoding/json"
	"os"

	gateerrors "reach/gate/internal/errors"
	"reach/gate/internal/guard"
	"reach/gate/internal/policy"
	"reach/gate/internal/provider"
)

// loadEvent reads the event file and enforces runtime.maxEventBytes
// (§4.9 step 2). A missing --event path is a governance error; an
// oversized event is an evaluation error represented as a finding so the
// caller still gets a report.
func loadEvent(o Options, limits policy.RuntimeLimits) ([]byte, *guard.Finding, error) {
	if o.EventPath == "" {
		return nil, nil, gateerrors.New(gateerrors.CodeEventPathRequired, "--event is required")
	}
	data, err := os.ReadFile(o.EventPath)
	if err != nil {
		return nil, nil, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "read event file").WithContext("path", o.EventPath)
	}
	if limits.MaxEventBytes > 0 && len(data) > limits.MaxEventBytes {
		return data, &guard.Finding{
			Code:     guard.CodeEventTooLarge,
			Severity: guard.SeverityBlock,
			Message:  "event payload exceeds runtime.maxEventBytes",
			Details:  map[string]any{"maxEventBytes": limits.MaxEventBytes, "actualBytes": len(data)},
		}, nil
	}
	return data, nil, nil
}

// parsePayload unmarshals the event body. A parse failure is itself an
// evaluation error (§7 tier 2): it becomes a blocking finding rather than
// aborting the invocation, and extraction is skipped.
func parsePayload(data []byte) (map[string]any, *guard.Finding) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &guard.Finding{
			Code:     guard.CodeMalformedEvent,
			Severity: guard.SeverityBlock,
			Message:  "event payload is not valid JSON",
			Details:  map[string]any{"error": err.Error()},
		}
	}
	return payload, nil
}

// checkSupportedEvent implements §4.9 step 3.
func checkSupportedEvent(prov provider.Provider, eventName string, limits policy.RuntimeLimits) *guard.Finding {
	if !limits.FailOnUnsupportedEvent {
		return nil
	}
	for _, e := range prov.SupportedEvents() {
		if e == eventName {
			return nil
		}
	}
	return &guard.Finding{
		Code:     guard.CodeUnsupportedEvent,
		Severity: guard.SeverityBlock,
		Message:  "event name is not among the provider's supported events",
		Details:  map[string]any{"eventName": eventName},
	}
}

// truncateTargets implements §4.9 step 5: bodies longer than
// runtime.maxBodyChars are truncated in a returned copy (the input slice is
// left unchanged), each truncation contributing
// a GUARD_BODY_TRUNCATED finding.
func truncateTargets(targets []provider.ReviewTarget, maxBodyChars int) ([]provider.ReviewTarget, []guard.Finding) {
	if maxBodyChars <= 0 {
		return targets, nil
	}
	var findings []guard.Finding
	out := make([]provider.ReviewTarget, len(targets))
	for i, t := range targets {
		out[i] = t
		if len(t.Body) > maxBodyChars {
			out[i].Body = t.Body[:maxBodyChars]
			findings = append(findings, guard.Finding{
				Code:              guard.CodeBodyTruncated,
				Severity:          guard.SeverityBlock,
				Message:           "target body exceeded runtime.maxBodyChars and was truncated",
				TargetReferenceID: t.ReferenceID,
				Details:           map[string]any{"maxBodyChars": maxBodyChars, "originalLength": len(t.Body)},
			})
		}
	}
	return out, findings
}
