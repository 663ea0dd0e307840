package driver

import (
	"bytes"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gateerrors "reach/gate/internal/errors"
	"reach/gate/internal/policy"
)

// fakeRoundTripper queues canned HTTP responses and counts how many were
// consumed, mirroring the provider package's own test double.
type fakeRoundTripper struct {
	responses []*http.Response
	calls     int
}

func (f *fakeRoundTripper) Do(req *http.Request) (*http.Response, error) {
	if f.calls >= len(f.responses) {
		return nil, fmt.Errorf("fakeRoundTripper: no more queued responses")
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func jsonResponse(status int, body string, headers map[string]string) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{},
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func basePolicy() policy.Policy {
	return policy.Policy{
		Version:                 1,
		Enforcement:             policy.EnforcementBlock,
		ScanPRBody:              true,
		ScanReview:              true,
		MaxAiScore:              1.0,
		DisclosureRequiredScore: 1.0,
	}
}

func TestRunGitHubHappyPathPasses(t *testing.T) {
	dir := t.TempDir()
	p := basePolicy()
	p.MinHumanApprovals = 1
	policyPath := writeJSON(t, dir, "policy.json", p)

	eventPath := writeJSON(t, dir, "event.json", map[string]any{
		"repository": map[string]any{"full_name": "acme/repo"},
		"pull_request": map[string]any{
			"number": 42, "body": "Adds a feature",
			"user": map[string]any{"login": "contributor", "type": "User"},
		},
		"review": map[string]any{
			"id": 9, "body": "Looks good",
			"user": map[string]any{"login": "reviewer", "type": "User"},
		},
	})

	rt := &fakeRoundTripper{responses: []*http.Response{
		jsonResponse(200, `[{"state":"APPROVED","user":{"login":"reviewer","type":"User"}}]`, nil),
	}}

	result, err := Run(context.Background(), Options{
		PolicyPath: policyPath,
		EventPath:  eventPath,
		EventName:  "pull_request_review",
		Provider:   "github",
		HTTPClient: rt,
		EnvTokens:  map[string]string{"GITHUB_TOKEN": "token123"},
	})
	if err != nil {
		t.Fatalf("Run returned governance error: %v", err)
	}
	if result.Report.Decision != "pass" {
		t.Fatalf("decision = %q, findings=%v", result.Report.Decision, result.Report.Findings)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", result.ExitCode)
	}
	if len(result.Report.Findings) != 0 {
		t.Fatalf("unexpected findings: %+v", result.Report.Findings)
	}
}

func TestRunMissingGitLabTokenBlocks(t *testing.T) {
	dir := t.TempDir()
	p := basePolicy()
	p.MinHumanApprovals = 1
	policyPath := writeJSON(t, dir, "policy.json", p)

	eventPath := writeJSON(t, dir, "event.json", map[string]any{
		"project": map[string]any{"path_with_namespace": "acme/repo"},
		"object_attributes": map[string]any{
			"iid": 7, "description": "Adds a feature",
		},
		"user": map[string]any{"username": "contributor", "bot": false},
	})

	result, err := Run(context.Background(), Options{
		PolicyPath: policyPath,
		EventPath:  eventPath,
		EventName:  "Merge Request Hook",
		Provider:   "gitlab",
		EnvTokens:  map[string]string{},
	})
	if err != nil {
		t.Fatalf("Run returned governance error: %v", err)
	}
	if result.Report.Decision != "block" {
		t.Fatalf("decision = %q, want block", result.Report.Decision)
	}
	if result.ExitCode != 1 {
		t.Fatalf("exitCode = %d, want 1", result.ExitCode)
	}
	var found bool
	for _, f := range result.Report.Findings {
		if f.Code == "GUARD_APPROVALS_UNVERIFIED" {
			found = true
			if got := f.Message; !strings.Contains(got, "GITLAB_TOKEN unavailable") {
				t.Errorf("message = %q, want it to mention GITLAB_TOKEN unavailable", got)
			}
		}
	}
	if !found {
		t.Fatalf("expected GUARD_APPROVALS_UNVERIFIED finding, got %+v", result.Report.Findings)
	}
}

func TestRunRateLimitThenSuccess(t *testing.T) {
	dir := t.TempDir()
	p := basePolicy()
	p.MinHumanApprovals = 1
	p.Approvals.Retry.Enabled = true
	p.Approvals.Retry.MaxAttempts = 2
	p.Approvals.Retry.BaseDelayMs = 1
	p.Approvals.Retry.RetryableStatusCodes = []int{429}
	policyPath := writeJSON(t, dir, "policy.json", p)

	eventPath := writeJSON(t, dir, "event.json", map[string]any{
		"repository": map[string]any{"full_name": "acme/repo"},
		"pull_request": map[string]any{
			"number": 42, "body": "Adds a feature",
			"user": map[string]any{"login": "contributor", "type": "User"},
		},
		"review": map[string]any{
			"id": 9, "body": "Looks good",
			"user": map[string]any{"login": "reviewer", "type": "User"},
		},
	})

	rt := &fakeRoundTripper{responses: []*http.Response{
		jsonResponse(429, `{}`, nil),
		jsonResponse(200, `[{"state":"APPROVED","user":{"login":"reviewer","type":"User"}}]`, nil),
	}}

	result, err := Run(context.Background(), Options{
		PolicyPath: policyPath,
		EventPath:  eventPath,
		EventName:  "pull_request_review",
		Provider:   "github",
		HTTPClient: rt,
		EnvTokens:  map[string]string{"GITHUB_TOKEN": "token123"},
	})
	if err != nil {
		t.Fatalf("Run returned governance error: %v", err)
	}
	if rt.calls != 2 {
		t.Fatalf("calls = %d, want exactly 2 (one 429 then one success)", rt.calls)
	}
	if result.Report.Decision != "pass" {
		t.Fatalf("decision = %q, want pass", result.Report.Decision)
	}
}

func TestResolvePolicySourceRejectsConflictingGroups(t *testing.T) {
	_, err := resolvePolicySource(Options{PolicyPath: "policy.json", OrgPolicyPath: "org.json", LocalPolicyPath: "local.json"})
	assertGateErrorCode(t, err, gateerrors.CodeArgConflict)
}

func TestResolvePolicySourceRequiresOne(t *testing.T) {
	_, err := resolvePolicySource(Options{})
	assertGateErrorCode(t, err, gateerrors.CodeArgRequired)
}

func TestResolveBundleRejectsInsufficientSignatures(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	if err := os.WriteFile(schemaPath, []byte(`{"type":"object"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	schemaSha, err := hashFile(schemaPath)
	if err != nil {
		t.Fatal(err)
	}

	bundle := policy.BuildTemplate(basePolicy(), schemaPath, schemaSha, 1, nil)
	bundlePath := writeJSON(t, dir, "bundle.json", bundle)

	trustStore := policy.TrustStore{SchemaVersion: 1}
	trustStorePath := writeJSON(t, dir, "truststore.json", trustStore)

	_, err = resolvePolicySource(Options{
		BundlePath:     bundlePath,
		SchemaPath:     schemaPath,
		TrustStorePath: trustStorePath,
	})
	assertGateErrorCode(t, err, gateerrors.CodeBundleSignaturesInvalid)
}

func TestResolveOverrideMergesAllowedPath(t *testing.T) {
	dir := t.TempDir()
	org := basePolicy()
	org.Runtime.MaxTargets = 10
	local := org
	local.Runtime.MaxTargets = 50

	orgPath := writeJSON(t, dir, "org.json", org)
	localPath := writeJSON(t, dir, "local.json", local)

	resolved, err := resolvePolicySource(Options{OrgPolicyPath: orgPath, LocalPolicyPath: localPath})
	if err != nil {
		t.Fatalf("resolvePolicySource: %v", err)
	}
	if resolved.Policy.Runtime.MaxTargets != 50 {
		t.Fatalf("runtime.maxTargets = %d, want 50", resolved.Policy.Runtime.MaxTargets)
	}
}

func TestResolveOverrideRejectsForbiddenPath(t *testing.T) {
	dir := t.TempDir()
	org := basePolicy()
	org.Enforcement = policy.EnforcementBlock
	local := org
	local.Enforcement = policy.EnforcementWarn

	orgPath := writeJSON(t, dir, "org.json", org)
	localPath := writeJSON(t, dir, "local.json", local)

	_, err := resolvePolicySource(Options{OrgPolicyPath: orgPath, LocalPolicyPath: localPath})
	assertGateErrorCode(t, err, gateerrors.CodeOverrideForbidden)
}

func TestRunReplayDeterminism(t *testing.T) {
	dir := t.TempDir()
	p := basePolicy()
	policyPath := writeJSON(t, dir, "policy.json", p)

	eventPath := writeJSON(t, dir, "event.json", map[string]any{
		"repository": map[string]any{"full_name": "acme/repo"},
		"pull_request": map[string]any{
			"number": 42, "body": "Adds a feature",
			"user": map[string]any{"login": "contributor", "type": "User"},
		},
	})

	opts := Options{
		PolicyPath:    policyPath,
		EventPath:     eventPath,
		EventName:     "pull_request",
		Provider:      "github",
		Now:           func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		CorrelationID: "fixed-correlation-id",
	}

	first, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	baselinePath := filepath.Join(dir, "baseline.json")
	data, err := json.Marshal(first.Report)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(baselinePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	opts.Now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	opts.ReplayReportPath = baselinePath
	second, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, f := range second.Report.Findings {
		if f.Code == "GUARD_REPLAY_MISMATCH" {
			t.Fatalf("unexpected replay mismatch: %+v", f)
		}
	}
	if second.Report.Decision != "pass" {
		t.Fatalf("decision = %q, want pass", second.Report.Decision)
	}
}

func assertGateErrorCode(t *testing.T, err error, want gateerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want)
	}
	var ge *gateerrors.GateError
	if !goerrors.As(err, &ge) {
		t.Fatalf("expected *errors.GateError, got %T (%v)", err, err)
	}
	if ge.Code != want {
		t.Fatalf("code = %s, want %s", ge.Code, want)
	}
}
