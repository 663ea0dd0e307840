package codec

import (
	"crypto/sha256"
	"encoding/hex"
)

// ReplayFields are the report fields carried into a replay-comparable
// projection. timestamp, policyPath, and generatedReports are deliberately
// excluded so identical inputs hash identically across runs that differ
// only in wall-clock time or output file layout.
var ReplayFields = []string{
	"schemaVersion", "provider", "eventName", "policyVersion", "enforcement",
	"decision", "targetsScanned", "highestAiScore", "humanApprovals",
	"findings", "targets", "evidenceHashes", "accessibilitySummary",
}

// ToReplayComparable projects report (any JSON-marshalable value, typically
// a *report.Report) onto ReplayFields and returns its canonical
// stringification.
func ToReplayComparable(report any) string {
	generic := toGeneric(report)
	m, ok := generic.(map[string]any)
	if !ok {
		return StableStringify(nil)
	}
	projected := make(map[string]any, len(ReplayFields))
	for _, f := range ReplayFields {
		if val, present := m[f]; present {
			projected[f] = val
		}
	}
	return StableStringify(projected)
}

// ReplayDigest is sha256(ToReplayComparable(report)) in lowercase hex.
func ReplayDigest(report any) string {
	sum := sha256.Sum256([]byte(ToReplayComparable(report)))
	return hex.EncodeToString(sum[:])
}
