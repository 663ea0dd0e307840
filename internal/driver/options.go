// Package driver implements the runtime orchestration (component C9):
// policy-source resolution, event loading and guard limits, the pipeline
// sequence guard → approvals → domain engine → exceptions → report, and
// the two-tier error handling from §7. cmd/reach-gate is the only caller
// that touches os.Args or the environment directly; everything the driver
// needs arrives through Options (§9 "No hidden globals").
package driver

import (
	"time"

	"reach/gate/internal/provider"
	"reach/gate/internal/report"
)

// Options is the fully-resolved input to Run. The CLI wrapper is
// responsible for turning argv/env into one of these.
type Options struct {
	// Policy source — exactly one group must be populated.
	PolicyPath string

	BundlePath      string
	SchemaPath      string
	PublicKeys      map[string]string // keyId -> PEM file path
	TrustStorePath  string

	OrgPolicyPath           string
	LocalPolicyPath         string
	OverrideConstraintsPath string

	EventPath string
	EventName string
	Provider  string // "github" (default), "gitlab", "bitbucket"

	ReportPath       string
	ReportFormat     report.Format
	ReplayReportPath string
	Redact           bool

	// ExceptionsPath points at a JSON file of []exception.Record (§3
	// ExceptionRecord). The distilled spec names the exception filter's
	// input shape but not its source flag; this repository resolves that
	// gap with a dedicated file, consistent with how every other input
	// (policy, event, trust store) arrives as a flat JSON file.
	ExceptionsPath string

	// EnvTokens holds provider credential env vars (GITHUB_TOKEN, ...),
	// read once at the edge by the caller via internal/envconfig.
	EnvTokens map[string]string

	HTTPClient provider.HTTPClient

	// Now is injected so report timestamps and exception expiry checks are
	// reproducible in tests.
	Now func() time.Time

	// CorrelationID overrides the generated evidence correlation id; tests
	// set this to keep fixtures stable. Empty means "generate one".
	CorrelationID string

	Logger EventLogger
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o Options) logger() EventLogger {
	if o.Logger != nil {
		return o.Logger
	}
	return NopLogger{}
}
