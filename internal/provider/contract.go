// Package provider implements the three provider adapters (component C4):
// event target extraction, pull-context resolution, and human-approval
// counting, behind one uniform contract with a shared retry/rate-limit
// algorithm.
package provider

import (
	"context"
	"net/http"
)

// HTTPClient is satisfied by *http.Client; tests inject a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthorType classifies the account that produced a ReviewTarget.
type AuthorType string

const (
	AuthorUser    AuthorType = "User"
	AuthorBot     AuthorType = "Bot"
	AuthorUnknown AuthorType = "Unknown"
)

// TargetSource is where a ReviewTarget's text came from.
type TargetSource string

const (
	SourcePRBody  TargetSource = "pr_body"
	SourceReview  TargetSource = "review"
	SourceComment TargetSource = "comment"
)

// Author identifies the account behind a target.
type Author struct {
	Login string     `json:"login"`
	Type  AuthorType `json:"type"`
}

// ReviewTarget is one review-visible text artifact (§3).
type ReviewTarget struct {
	Source      TargetSource `json:"source"`
	ReferenceID string       `json:"referenceId"`
	Author      Author       `json:"author"`
	Body        string       `json:"body"`
}

// PullContext locates the pull/merge request an event refers to (§3).
type PullContext struct {
	Owner string
	Repo  string
	Number int
}

// PolicyContext is the subset of policy fields a target extractor needs,
// passed in rather than the whole Policy to keep this package independent
// of internal/policy.
type PolicyContext struct {
	ScanPRBody       bool
	ScanReview       bool
	ScanComment      bool
	ScanIssueComment bool
}

// ExtractResult is what ExtractTargets returns (§4.4).
type ExtractResult struct {
	Targets          []ReviewTarget
	MalformedReasons []string
}

// ApprovalErrorKind classifies a failed approval fetch (§4.4).
type ApprovalErrorKind string

const (
	ErrKindTimeout       ApprovalErrorKind = "timeout"
	ErrKindRateLimited   ApprovalErrorKind = "rate_limited"
	ErrKindRetryExhausted ApprovalErrorKind = "retry_exhausted"
	ErrKindFetchError    ApprovalErrorKind = "fetch_error"
	ErrKindHTTPError     ApprovalErrorKind = "http_error"
)

// AttemptLogEntry records one HTTP attempt for diagnostics (§4.4, and the
// SPEC_FULL supplement keeping up to the last 20 such entries).
type AttemptLogEntry struct {
	Attempt    int    `json:"attempt"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
	DelayMs    int    `json:"delayMs"`
}

// ApprovalError is returned by FetchHumanApprovalCount on failure.
type ApprovalError struct {
	Kind       ApprovalErrorKind
	Message    string
	AttemptLog []AttemptLogEntry
}

func (e *ApprovalError) Error() string { return string(e.Kind) + ": " + e.Message }

// RetryConfig is the subset of policy.ApprovalSettings the retry helper
// needs, passed by value so this package stays independent of
// internal/policy.
type RetryConfig struct {
	Enabled              bool
	MaxAttempts          int
	BaseDelayMs          int
	MaxDelayMs           int
	JitterRatio          float64
	RetryableStatusCodes []int
	FetchTimeoutMs       int
	MaxPages             int
}

// Provider is the uniform contract every provider adapter satisfies (§4.4).
type Provider interface {
	Name() string
	SupportedEvents() []string
	ExtractTargets(eventName string, payload map[string]any, policyCtx PolicyContext) ExtractResult
	ExtractPullContext(eventName string, payload map[string]any) (PullContext, bool)
	FetchHumanApprovalCount(ctx context.Context, pc PullContext, cfg RetryConfig, allowedAuthors []string, token string) (int, error)
	ApprovalTokenEnvVar() string
}
