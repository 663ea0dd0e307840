package codec

import (
	"fmt"
	"reflect"
	"strings"
)

// RunDiff is the result of comparing two reports field by field, used by
// the "reach-gate diff" subcommand and by tests that assert two runs
// produced byte-identical replay-comparable output.
type RunDiff struct {
	MismatchFound bool
	Diffs         []string
}

func (d RunDiff) FormatDiff() string {
	if !d.MismatchFound {
		return "reports are identical\n"
	}
	return fmt.Sprintf("found %d differences:\n%s\n", len(d.Diffs), strings.Join(d.Diffs, "\n"))
}

// DiffReports structurally compares two reports (or any JSON-marshalable
// values) after routing them through the same canonicalization used for
// hashing, so float/struct representational differences never produce a
// false mismatch.
func DiffReports(a, b any) RunDiff {
	ga, _ := toGeneric(a).(map[string]any)
	gb, _ := toGeneric(b).(map[string]any)
	diffs := []string{}
	compareMap("", ga, gb, &diffs)
	return RunDiff{MismatchFound: len(diffs) > 0, Diffs: diffs}
}

func compareMap(path string, a, b map[string]any, diffs *[]string) {
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			*diffs = append(*diffs, fmt.Sprintf("missing key in second report: %s%s", path, k))
			continue
		}
		compareValue(fmt.Sprintf("%s%s.", path, k), va, vb, diffs)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			*diffs = append(*diffs, fmt.Sprintf("missing key in first report: %s%s", path, k))
		}
	}
}

func compareValue(path string, a, b any, diffs *[]string) {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		*diffs = append(*diffs, fmt.Sprintf("type mismatch at %s: %T vs %T", path, a, b))
		return
	}
	switch va := a.(type) {
	case map[string]any:
		compareMap(path, va, b.(map[string]any), diffs)
	case []any:
		compareSlice(path, va, b.([]any), diffs)
	default:
		if !reflect.DeepEqual(a, b) {
			*diffs = append(*diffs, fmt.Sprintf("value mismatch at %s: %v vs %v", path, a, b))
		}
	}
}

func compareSlice(path string, a, b []any, diffs *[]string) {
	if len(a) != len(b) {
		*diffs = append(*diffs, fmt.Sprintf("length mismatch at %s: %d vs %d", path, len(a), len(b)))
		return
	}
	for i := range a {
		compareValue(fmt.Sprintf("%s[%d]", path, i), a[i], b[i], diffs)
	}
}
