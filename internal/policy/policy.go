// Package policy implements the policy document, policy bundle signing and
// verification, and trust-store lifecycle (component C2), plus the
// path-scoped override merge (component C3, in the merge subpackage).
package policy

// Enforcement is the top-level policy disposition.
type Enforcement string

const (
	EnforcementBlock Enforcement = "block"
	EnforcementWarn  Enforcement = "warn"
)

// EnforcementStage (v3) is the dial that maps shadow-finding severity to an
// effective block/warn decision in the domain engine (§4.7).
type EnforcementStage string

const (
	StageWhisper EnforcementStage = "whisper"
	StageOath    EnforcementStage = "oath"
	StageThrone  EnforcementStage = "throne"
)

// RuleAction is what a guard rule does when its pattern matches.
type RuleAction string

const (
	RuleActionBlock RuleAction = "block"
	RuleActionScore RuleAction = "score"
)

// Rule is a single regex-based author-submitted-content rule.
type Rule struct {
	Name    string     `json:"name"`
	Pattern string     `json:"pattern"`
	Action  RuleAction `json:"action"`
	Weight  float64    `json:"weight"`
}

// RuntimeLimits (v2) bounds resource usage of a single invocation.
type RuntimeLimits struct {
	MaxBodyChars             int  `json:"maxBodyChars,omitempty"`
	MaxTargets               int  `json:"maxTargets,omitempty"`
	MaxEventBytes            int  `json:"maxEventBytes,omitempty"`
	FailOnUnsupportedEvent   bool `json:"failOnUnsupportedEvent,omitempty"`
	FailOnMalformedPayload   bool `json:"failOnMalformedPayload,omitempty"`
}

// RedactionMode controls how target bodies appear in the report.
type RedactionMode string

const (
	RedactionHash    RedactionMode = "hash"
	RedactionExcerpt RedactionMode = "excerpt"
)

// ReportSettings (v2) controls report body redaction.
type ReportSettings struct {
	RedactionMode RedactionMode `json:"redactionMode,omitempty"`
	IncludeBodies bool          `json:"includeBodies,omitempty"`
}

// RetrySettings (v2) parameterizes the uniform provider retry algorithm (§4.4).
type RetrySettings struct {
	Enabled             bool  `json:"enabled"`
	MaxAttempts         int   `json:"maxAttempts"`
	BaseDelayMs         int   `json:"baseDelayMs"`
	MaxDelayMs          int   `json:"maxDelayMs"`
	JitterRatio         float64 `json:"jitterRatio"`
	RetryableStatusCodes []int `json:"retryableStatusCodes,omitempty"`
}

// ApprovalSettings (v2) configures the human-approval fetch stage.
type ApprovalSettings struct {
	FetchTimeoutMs int           `json:"fetchTimeoutMs,omitempty"`
	MaxPages       int           `json:"maxPages,omitempty"`
	Retry          RetrySettings `json:"retry"`
}

// SizeBand bounds a coverage-policy tier (§4.7).
type SizeBand struct {
	MaxLinesChanged int `json:"maxLinesChanged"`
	MaxFilesChanged int `json:"maxFilesChanged"`
}

// CoveragePolicy (v3) selects how many, and which, domains get scored.
type CoveragePolicy struct {
	Small         SizeBand `json:"small"`
	Medium        SizeBand `json:"medium"`
	TieBreakOrder []Domain `json:"tieBreakOrder,omitempty"`
}

// DomainThreshold (v3) sets the warn/block score boundaries for one domain.
type DomainThreshold struct {
	WarnAt  float64 `json:"warnAt"`
	BlockAt float64 `json:"blockAt"`
}

// DomainRuleSettings (v3) toggles a domain and overrides finding severities.
type DomainRuleSettings struct {
	Enabled        bool              `json:"enabled"`
	CheckSeverities map[string]string `json:"checkSeverities,omitempty"`
}

// Policy is the versioned policy document (§3). Fields from later versions
// are present but zero-valued when a lower schema version is in effect;
// Version communicates which tier of behavior is active.
type Policy struct {
	Version int `json:"version"`

	Enforcement        Enforcement `json:"enforcement"`
	BlockBotAuthors     bool        `json:"blockBotAuthors"`
	BlockedAuthors      []string    `json:"blockedAuthors,omitempty"`
	AllowedAuthors      []string    `json:"allowedAuthors,omitempty"`

	ScanPRBody     bool `json:"scanPrBody"`
	ScanReview     bool `json:"scanReview"`
	ScanComment    bool `json:"scanComment"`
	ScanIssueComment bool `json:"scanIssueComment"`

	MaxAiScore             float64 `json:"maxAiScore"`
	DisclosureTag          string  `json:"disclosureTag"`
	DisclosureRequiredScore float64 `json:"disclosureRequiredScore"`
	MinHumanApprovals      int     `json:"minHumanApprovals"`

	Rules []Rule `json:"rules"`

	// v2
	Runtime   RuntimeLimits    `json:"runtime,omitempty"`
	Report    ReportSettings   `json:"report,omitempty"`
	Approvals ApprovalSettings `json:"approvals,omitempty"`

	// v3
	EnforcementStage EnforcementStage              `json:"enforcementStage,omitempty"`
	CoveragePolicy   CoveragePolicy                `json:"coveragePolicy,omitempty"`
	Thresholds       map[Domain]DomainThreshold    `json:"thresholds,omitempty"`
	DomainRules      map[Domain]DomainRuleSettings `json:"domainRules,omitempty"`
}

// V3Enabled reports whether the domain engine (C6) should run at all.
func (p Policy) V3Enabled() bool { return p.Version >= 3 }
