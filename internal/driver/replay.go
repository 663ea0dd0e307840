package driver

import (
	"encoding/json"
	"os"

	"reach/gate/internal/guard"
	"reach/gate/internal/report"
)

// applyReplayComparison implements §4.9 step 8: compare the current
// report's replay digest against a baseline file and, on mismatch, append
// a blocking GUARD_REPLAY_MISMATCH finding carrying both digests.
func applyReplayComparison(rpt report.Report, baselinePath string) report.Report {
	data, err := os.ReadFile(baselinePath)
	if err != nil {
		rpt.Findings = append(rpt.Findings, guard.Finding{
			Code:     guard.CodeReplayMismatch,
			Severity: guard.SeverityBlock,
			Message:  "replay baseline could not be read",
			Details:  map[string]any{"error": err.Error()},
		})
		rpt.Decision = "block"
		return rpt
	}
	var baseline report.Report
	if err := json.Unmarshal(data, &baseline); err != nil {
		rpt.Findings = append(rpt.Findings, guard.Finding{
			Code:     guard.CodeReplayMismatch,
			Severity: guard.SeverityBlock,
			Message:  "replay baseline is not a valid report",
			Details:  map[string]any{"error": err.Error()},
		})
		rpt.Decision = "block"
		return rpt
	}

	cmp := report.CompareReplay(rpt, baseline)
	if cmp.Mismatch {
		rpt.Findings = append(rpt.Findings, guard.Finding{
			Code:     guard.CodeReplayMismatch,
			Severity: guard.SeverityBlock,
			Message:  "current run does not replay the baseline report deterministically",
			Details:  map[string]any{"currentDigest": cmp.CurrentDigest, "baselineDigest": cmp.BaselineDigest},
		})
		rpt.Decision = "block"
	}
	return rpt
}
