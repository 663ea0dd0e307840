package guard

import (
	"regexp"
	"regexp/syntax"

	gateerrors "reach/gate/internal/errors"
)

// CompileRule compiles a rule pattern into a case-insensitive regex,
// rejecting both malformed patterns and catastrophically backtracking ones
// (§4.5) before any evaluation. Go's regexp package is RE2-based and so
// is immune to backtracking blowup at runtime regardless; the ahead-of-time
// check below exists because the spec's testable property requires
// E_UNSAFE_RULE_REGEX to be raised for patterns like `(a+)+$` even though
// this engine would evaluate them safely — a caller porting a rule set
// from a backtracking engine should not silently inherit a pattern that
// would be dangerous there.
func CompileRule(pattern string) (*regexp.Regexp, error) {
	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, gateerrors.Wrap(err, gateerrors.CodeInvalidRuleRegex, "rule pattern failed to compile").
			WithContext("pattern", pattern)
	}
	if hasNestedUnboundedQuantifier(parsed) {
		return nil, gateerrors.New(gateerrors.CodeUnsafeRuleRegex, "rule pattern has a nested unbounded quantifier").
			WithContext("pattern", pattern)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, gateerrors.Wrap(err, gateerrors.CodeInvalidRuleRegex, "rule pattern failed to compile").
			WithContext("pattern", pattern)
	}
	return re, nil
}

// hasNestedUnboundedQuantifier reports whether any unbounded-repetition
// node (Star, Plus, or Repeat{max:-1}) has a descendant that is itself
// unbounded-repetition — the classic `(a+)+` / `(a*)*` shape that causes
// catastrophic backtracking in a pure-backtracking engine.
func hasNestedUnboundedQuantifier(re *syntax.Regexp) bool {
	if isUnbounded(re) {
		for _, sub := range re.Sub {
			if containsUnbounded(sub) {
				return true
			}
		}
	}
	for _, sub := range re.Sub {
		if hasNestedUnboundedQuantifier(sub) {
			return true
		}
	}
	return false
}

func isUnbounded(re *syntax.Regexp) bool {
	switch re.Op {
	case syntax.OpStar, syntax.OpPlus:
		return true
	case syntax.OpRepeat:
		return re.Max == -1
	default:
		return false
	}
}

func containsUnbounded(re *syntax.Regexp) bool {
	if isUnbounded(re) {
		return true
	}
	for _, sub := range re.Sub {
		if containsUnbounded(sub) {
			return true
		}
	}
	return false
}
