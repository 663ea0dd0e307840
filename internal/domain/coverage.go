package domain

import (
	"sort"

	"reach/gate/internal/policy"
)

// sizeBand classifies a change's size given coveragePolicy's bands (§4.7).
type sizeBand int

const (
	bandSmall sizeBand = iota
	bandMedium
	bandLarge
)

func classifySizeBand(cp policy.CoveragePolicy, changedFiles, linesChanged int) sizeBand {
	if linesChanged <= cp.Small.MaxLinesChanged && changedFiles <= cp.Small.MaxFilesChanged {
		return bandSmall
	}
	if linesChanged <= cp.Medium.MaxLinesChanged && changedFiles <= cp.Medium.MaxFilesChanged {
		return bandMedium
	}
	return bandLarge
}

func targetDomainCount(b sizeBand) int {
	switch b {
	case bandSmall:
		return 1
	case bandMedium:
		return 2
	default:
		return 3
	}
}

// tieBreakIndex returns d's position in order, falling back to its position
// in the canonical AllDomains order when order omits it (§4.7).
func tieBreakIndex(d policy.Domain, order []policy.Domain) int {
	effective := effectiveTieBreakOrder(order)
	for i, o := range effective {
		if o == d {
			return i
		}
	}
	return len(effective)
}

// effectiveTieBreakOrder returns order with any domain missing from it
// appended in canonical order.
func effectiveTieBreakOrder(order []policy.Domain) []policy.Domain {
	seen := make(map[policy.Domain]bool, len(order))
	out := make([]policy.Domain, 0, len(policy.AllDomains))
	for _, d := range order {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, d := range policy.AllDomains {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func isDomainEnabled(p policy.Policy, d policy.Domain) bool {
	if rule, ok := p.DomainRules[d]; ok {
		return rule.Enabled
	}
	return true
}

// selectDomains filters disabled domains, sorts the rest by descending
// ranking score with ties broken by tieBreakOrder, and returns the top N
// for the size band computed from ctx (§4.7).
func selectDomains(p policy.Policy, ctx EvaluationContext, rankingScores map[policy.Domain]float64) []policy.Domain {
	band := classifySizeBand(p.CoveragePolicy, ctx.ChangedFiles, ctx.LinesChanged)
	n := targetDomainCount(band)
	order := effectiveTieBreakOrder(p.CoveragePolicy.TieBreakOrder)

	var candidates []policy.Domain
	for _, d := range policy.AllDomains {
		if isDomainEnabled(p, d) {
			candidates = append(candidates, d)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := rankingScores[candidates[i]], rankingScores[candidates[j]]
		if si != sj {
			return si > sj
		}
		return tieBreakIndex(candidates[i], order) < tieBreakIndex(candidates[j], order)
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}
