package errors

import "testing"

func TestGateErrorFormatting(t *testing.T) {
	cases := []struct {
		name string
		err  *GateError
		want string
	}{
		{"bare", New(CodeArgRequired, "event path missing"), "[E_ARG_REQUIRED] event path missing"},
		{"with cause", New(CodeBundleInvalid, "parse failed").WithCause(errString("eof")), "[E_POLICY_BUNDLE_INVALID] parse failed: eof"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.err.Error(); got != c.want {
				t.Errorf("Error() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestGateErrorContextTruncation(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	e := New(CodeArgInvalid, "oversized").WithContext("body", string(long))
	if got := len(e.Context["body"]); got != 220 {
		t.Errorf("context not truncated: len=%d", got)
	}
}

func TestWrapPreservesExistingGateError(t *testing.T) {
	original := New(CodeUnsafeRuleRegex, "nested quantifier")
	wrapped := Wrap(original, CodeInternal, "should not override")
	if wrapped != original {
		t.Errorf("Wrap replaced an existing *GateError")
	}
}

func TestCodeGovernanceTier(t *testing.T) {
	if !CodeUnsafeRuleRegex.Governance() {
		t.Errorf("CodeUnsafeRuleRegex should be governance-tier")
	}
	if CodeUnknown.Governance() {
		t.Errorf("CodeUnknown should not be governance-tier")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
