// Package domain implements the seven-domain risk engine (component C6):
// per-domain probes over a shared evaluation context, ranking-score
// augmentation, size-band coverage selection, threshold findings, severity
// override, and enforcement-stage decision mapping.
package domain

import (
	"strings"

	"reach/gate/internal/guard"
	"reach/gate/internal/provider"
)

// EvaluationContext is the shared input every domain evaluator reads from
// (§4.7): the raw payload, extracted targets, guard findings from C5, the
// concatenated corpus, and pull size metrics.
type EvaluationContext struct {
	Payload       map[string]any
	Targets       []provider.ReviewTarget
	GuardFindings []guard.Finding
	Corpus        string
	ChangedFiles  int
	LinesChanged  int
}

// BuildEvaluationContext assembles an EvaluationContext from an event
// payload, the guard evaluator's targets, and its findings.
func BuildEvaluationContext(payload map[string]any, targets []provider.ReviewTarget, findings []guard.Finding) EvaluationContext {
	var parts []string
	for _, t := range targets {
		if t.Body != "" {
			parts = append(parts, t.Body)
		}
	}
	if pr, ok := payload["pull_request"].(map[string]any); ok {
		if title, ok := pr["title"].(string); ok && title != "" {
			parts = append(parts, title)
		}
		if body, ok := pr["body"].(string); ok && body != "" {
			parts = append(parts, body)
		}
	}
	if review, ok := payload["review"].(map[string]any); ok {
		if body, ok := review["body"].(string); ok && body != "" {
			parts = append(parts, body)
		}
	}
	if comment, ok := payload["comment"].(map[string]any); ok {
		if body, ok := comment["body"].(string); ok && body != "" {
			parts = append(parts, body)
		}
	}

	changedFiles := 0
	additions := 0
	deletions := 0
	if pr, ok := payload["pull_request"].(map[string]any); ok {
		changedFiles = floorNonNegativeInt(pr["changed_files"])
		additions = floorNonNegativeInt(pr["additions"])
		deletions = floorNonNegativeInt(pr["deletions"])
	}

	return EvaluationContext{
		Payload:       payload,
		Targets:       targets,
		GuardFindings: findings,
		Corpus:        strings.Join(parts, "\n"),
		ChangedFiles:  changedFiles,
		LinesChanged:  additions + deletions,
	}
}

func floorNonNegativeInt(v any) int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	default:
		return 0
	}
	if f < 0 {
		return 0
	}
	return int(f)
}
