// Package merge implements the override merge (component C3):
// path-scoped diff and deep-merge of an organization policy with a local
// override, constrained by an allow/deny path policy.
package merge

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	gateerrors "reach/gate/internal/errors"
)

// Constraints mirrors the wire shape of policy.OverrideConstraints. Kept
// independent of package policy to avoid an import cycle (policy documents
// do not need to know how they are merged).
type Constraints struct {
	AllowedOverridePaths   []string `json:"allowedOverridePaths"`
	ForbiddenOverridePaths []string `json:"forbiddenOverridePaths"`
}

// DefaultConstraints implements §4.3's default permit/forbid lists, used
// when the caller supplies none.
func DefaultConstraints() Constraints {
	return Constraints{
		AllowedOverridePaths: []string{
			"blockedAuthors", "allowedAuthors",
			"scanPrBody", "scanReview", "scanComment", "scanIssueComment",
			"runtime.maxBodyChars", "runtime.maxTargets", "runtime.maxEventBytes",
			"report.*",
			"approvals.*",
			"rules", "rules.*",
		},
		ForbiddenOverridePaths: []string{
			"version", "enforcement", "blockBotAuthors",
			"maxAiScore", "disclosureTag", "disclosureRequiredScore",
			"runtime.failOnUnsupportedEvent", "runtime.failOnMalformedPayload",
		},
	}
}

// arrayIndexPattern matches a `[n]` path segment for normalization to `.n`.
var arrayIndexPattern = regexp.MustCompile(`\[(\d+)\]`)

func normalizePath(p string) string {
	return arrayIndexPattern.ReplaceAllString(p, ".$1")
}

// isPathMatch implements §4.3's matching rule: exact match, or a pattern
// ending in `.*` that matches either the bare prefix or prefix + ".anything".
func isPathMatch(pattern, path string) bool {
	if pattern == path {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		if path == prefix || strings.HasPrefix(path, prefix+".") {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		if isPathMatch(pat, path) {
			return true
		}
	}
	return false
}

// toGeneric decodes v (a struct or map) into the generic JSON shape used
// for diffing and merging.
func toGeneric(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CollectDiffPaths returns the normalized, deduplicated, sorted set of
// paths where org and local differ. Root-level type divergence collapses
// to a single synthetic "<root>" entry, which callers should treat as an
// immediate structural failure rather than an overridable path.
func CollectDiffPaths(org, local any) ([]string, error) {
	og, err := toGeneric(org)
	if err != nil {
		return nil, err
	}
	lg, err := toGeneric(local)
	if err != nil {
		return nil, err
	}
	paths := map[string]bool{}
	collectDiffPaths("", og, lg, paths)
	out := make([]string, 0, len(paths))
	for p := range paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func collectDiffPaths(prefix string, a, b any, out map[string]bool) {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		keys := map[string]bool{}
		for k := range am {
			keys[k] = true
		}
		for k := range bm {
			keys[k] = true
		}
		for k := range keys {
			childPath := k
			if prefix != "" {
				childPath = prefix + "." + k
			}
			av, aok := am[k]
			bv, bok := bm[k]
			if !aok || !bok {
				out[normalizePath(childPath)] = true
				continue
			}
			collectDiffPaths(childPath, av, bv, out)
		}
		return
	}

	aa, aIsArr := a.([]any)
	ba, bIsArr := b.([]any)
	if aIsArr && bIsArr {
		if len(aa) != len(ba) {
			out[normalizePath(prefix)] = true
			return
		}
		for i := range aa {
			childPath := prefix + "[" + strconv.Itoa(i) + "]"
			collectDiffPaths(childPath, aa[i], ba[i], out)
		}
		return
	}

	if !jsonEqual(a, b) {
		if prefix == "" {
			out["<root>"] = true
			return
		}
		out[normalizePath(prefix)] = true
	}
}

func jsonEqual(a, b any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// MergeWithConstraints implements §4.3: diff org vs local, reject forbidden
// paths, require every remaining path to be allowed, then deep-merge
// (local wins at leaves, arrays replace wholesale) and return the merged
// generic object.
func MergeWithConstraints(org, local any, constraints *Constraints) (map[string]any, error) {
	c := DefaultConstraints()
	if constraints != nil {
		c = *constraints
	}

	diffPaths, err := CollectDiffPaths(org, local)
	if err != nil {
		return nil, err
	}

	var violations []string
	for _, p := range diffPaths {
		if p == "<root>" {
			continue // root-level divergence is filtered out, not overridable
		}
		if matchesAny(c.ForbiddenOverridePaths, p) {
			violations = append(violations, p)
			continue
		}
		if !matchesAny(c.AllowedOverridePaths, p) {
			violations = append(violations, p)
		}
	}
	if len(violations) > 0 {
		sort.Strings(violations)
		violations = dedupe(violations)
		return nil, gateerrors.Newf(gateerrors.CodeOverrideForbidden,
			"local policy overrides forbidden paths: %s", strings.Join(violations, ", ")).
			WithContext("paths", strings.Join(violations, ","))
	}

	og, err := toGeneric(org)
	if err != nil {
		return nil, err
	}
	lg, err := toGeneric(local)
	if err != nil {
		return nil, err
	}
	merged := deepMerge(og, lg)
	m, ok := merged.(map[string]any)
	if !ok {
		return nil, gateerrors.New(gateerrors.CodeOverrideConstraintsInvalid, "merged policy is not an object")
	}
	return m, nil
}

func deepMerge(base, override any) any {
	bm, bIsMap := base.(map[string]any)
	om, oIsMap := override.(map[string]any)
	if bIsMap && oIsMap {
		out := make(map[string]any, len(bm))
		for k, v := range bm {
			out[k] = v
		}
		for k, v := range om {
			if existing, ok := out[k]; ok {
				out[k] = deepMerge(existing, v)
			} else {
				out[k] = v
			}
		}
		return out
	}
	// Arrays and scalars: override replaces wholesale.
	return override
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	var last string
	first := true
	for _, s := range sorted {
		if first || s != last {
			out = append(out, s)
			last = s
			first = false
		}
	}
	return out
}
