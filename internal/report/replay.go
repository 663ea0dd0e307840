package report

import "reach/gate/internal/codec"

// ReplayComparison is the outcome of comparing a report against a baseline
// (§4.9 step 8).
type ReplayComparison struct {
	Mismatch       bool
	CurrentDigest  string
	BaselineDigest string
}

// CompareReplay computes the replay digests of current and baseline and
// reports whether they diverge.
func CompareReplay(current, baseline Report) ReplayComparison {
	cur := codec.ReplayDigest(current)
	base := codec.ReplayDigest(baseline)
	return ReplayComparison{Mismatch: cur != base, CurrentDigest: cur, BaselineDigest: base}
}
