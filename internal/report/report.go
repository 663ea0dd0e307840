// Package report implements the report assembler (component C8): combining
// guard and domain-engine findings into the versioned report document,
// JSON/Markdown/SARIF serialization, redaction, the accessibility summary,
// and replay-digest drift detection.
package report

import (
	"time"

	"reach/gate/internal/domain"
	"reach/gate/internal/exception"
	"reach/gate/internal/guard"
)

// Format is an output serialization requested via --report-format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatMD    Format = "md"
	FormatSARIF Format = "sarif"
	FormatAll   Format = "all"
)

// ShadowDomainDecision is one v3 domain's retained findings and decision,
// after exception filtering.
type ShadowDomainDecision struct {
	Domain   string                 `json:"domain"`
	Score    float64                `json:"score"`
	Decision string                 `json:"decision"`
	Findings []domain.ShadowFinding `json:"findings"`
}

// RedactedTarget is a ReviewTarget projected for the report under the
// policy's redaction mode (§4.9).
type RedactedTarget struct {
	ReferenceID string `json:"referenceId"`
	Source      string `json:"source"`
	AuthorLogin string `json:"authorLogin"`
	AuthorType  string `json:"authorType"`
	BodyHash    string `json:"bodyHash,omitempty"`
	BodyExcerpt string `json:"bodyExcerpt,omitempty"`
	Body        string `json:"body,omitempty"`
}

// AccessibilitySummary is constant-shaped regardless of outcome (§4.9).
type AccessibilitySummary struct {
	Decision              string            `json:"decision"`
	StatusWords           map[string]string `json:"statusWords"`
	NonColorStatusSignals bool              `json:"nonColorStatusSignals"`
	ScreenReaderFriendly  bool              `json:"screenReaderFriendly"`
	CognitiveLoad         string            `json:"cognitiveLoad"`
}

// Report is the versioned report document (§3).
type Report struct {
	SchemaVersion    string                 `json:"schemaVersion"`
	Timestamp        time.Time              `json:"timestamp"`
	Provider         string                 `json:"provider"`
	EventName        string                 `json:"eventName"`
	PolicyVersion    int                    `json:"policyVersion"`
	Enforcement      string                 `json:"enforcement"`
	EnforcementStage string                 `json:"enforcementStage,omitempty"`
	Decision         string                 `json:"decision"`
	SelectedDomains  []string               `json:"selectedDomains,omitempty"`
	TargetsScanned   int                    `json:"targetsScanned"`
	HighestAiScore   float64                `json:"highestAiScore"`
	HumanApprovals   int                    `json:"humanApprovals"`
	Findings         []guard.Finding        `json:"findings"`
	ShadowDecisions  []ShadowDomainDecision `json:"shadowDecisions,omitempty"`
	ExceptionsApplied []exception.Applied   `json:"exceptionsApplied,omitempty"`
	Targets          []RedactedTarget       `json:"targets"`
	EvidenceHashes   map[string]string      `json:"evidenceHashes"`
	AccessibilitySummary AccessibilitySummary `json:"accessibilitySummary"`
	CorrelationID    string                 `json:"correlationId,omitempty"`
	PolicyPath       string                 `json:"policyPath,omitempty"`
}

const SchemaVersion = "reach-gate/3"

func statusWordFor(decision string) string {
	switch decision {
	case "pass":
		return "Pass"
	case "warn":
		return "Warn"
	default:
		return "Block"
	}
}

func buildAccessibilitySummary(decision string, findingCount int) AccessibilitySummary {
	load := "low"
	if findingCount > 5 {
		load = "medium"
	}
	word := statusWordFor(decision)
	return AccessibilitySummary{
		Decision:    word + ": governance gate evaluation completed with decision " + decision,
		StatusWords: map[string]string{"pass": "Pass", "warn": "Warn", "block": "Block"},
		NonColorStatusSignals: true,
		ScreenReaderFriendly:  true,
		CognitiveLoad:         load,
	}
}
