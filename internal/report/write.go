package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Write serializes r in the requested format(s) to path (or, for "all",
// to path with each format's extension substituted), with 2-space indent
// and a trailing newline, creating parent directories as needed (§4.9 step 9).
func Write(path string, format Format, r Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if format == FormatAll {
		for _, f := range []Format{FormatJSON, FormatMD, FormatSARIF} {
			if err := Write(withExt(path, string(f)), f, r); err != nil {
				return err
			}
		}
		return nil
	}

	var body []byte
	var err error
	switch format {
	case FormatJSON, "":
		body, err = renderJSON(r)
	case FormatMD:
		body = []byte(renderMarkdown(r))
	case FormatSARIF:
		body, err = renderSARIF(r)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), append(body, '\n'), 0o644)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func withExt(path, format string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "." + format
}

func renderJSON(r Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func renderMarkdown(r Report) string {
	var sb strings.Builder
	word := strings.ToUpper(statusWordFor(r.Decision))

	sb.WriteString(fmt.Sprintf("# Governance Gate Report\n\n"))
	sb.WriteString(fmt.Sprintf("**Decision**: [%s]\n\n", word))
	sb.WriteString(fmt.Sprintf("Provider: `%s` · Event: `%s` · Policy version: %d\n\n", r.Provider, r.EventName, r.PolicyVersion))

	if len(r.SelectedDomains) > 0 {
		sb.WriteString("## Selected Domains\n\n")
		for _, d := range r.SelectedDomains {
			sb.WriteString(fmt.Sprintf("- %s\n", d))
		}
		sb.WriteString("\n")
	}

	if len(r.Findings) > 0 {
		sb.WriteString("## Findings\n\n")
		for _, f := range r.Findings {
			sb.WriteString(fmt.Sprintf("### [%s] %s\n\n%s\n\n", strings.ToUpper(string(f.Severity)), f.Code, f.Message))
		}
	}

	for _, sd := range r.ShadowDecisions {
		if len(sd.Findings) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s (score %.1f, %s)\n\n", titleCase(sd.Domain), sd.Score, strings.ToUpper(sd.Decision)))
		for _, f := range sd.Findings {
			sb.WriteString(fmt.Sprintf("- **[%s] %s**: %s — %s\n", strings.ToUpper(string(f.Severity)), f.Code, f.Message, f.Remediation))
		}
		sb.WriteString("\n")
	}

	if len(r.ExceptionsApplied) > 0 {
		sb.WriteString("## Exceptions Applied\n\n")
		for _, e := range r.ExceptionsApplied {
			sb.WriteString(fmt.Sprintf("- `%s` (expires %s): %s\n", e.Check, e.ExpiresAt.Format("2006-01-02"), e.Reason))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n")
	sb.WriteString(r.AccessibilitySummary.Decision + "\n")
	return sb.String()
}

// sarifLog mirrors the minimal surface of a SARIF 2.1.0 log needed here.
type sarifLog struct {
	Schema  string      `json:"$schema"`
	Version string      `json:"version"`
	Runs    []sarifRun  `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID string `json:"id"`
}

type sarifResult struct {
	RuleID  string         `json:"ruleId"`
	Level   string         `json:"level"`
	Message sarifMessage   `json:"message"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

func renderSARIF(r Report) ([]byte, error) {
	seen := map[string]bool{}
	var rules []sarifRule
	var results []sarifResult

	addRule := func(code string) {
		if !seen[code] {
			seen[code] = true
			rules = append(rules, sarifRule{ID: code})
		}
	}

	for _, f := range r.Findings {
		addRule(f.Code)
		results = append(results, sarifResult{RuleID: f.Code, Level: sarifLevel(string(f.Severity)), Message: sarifMessage{Text: f.Message}})
	}
	for _, sd := range r.ShadowDecisions {
		for _, f := range sd.Findings {
			addRule(f.Code)
			results = append(results, sarifResult{RuleID: f.Code, Level: sarifLevel(string(f.Severity)), Message: sarifMessage{Text: f.Message}})
		}
	}

	log := sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: "reach-gate", Rules: rules}},
			Results: results,
		}},
	}
	return json.MarshalIndent(log, "", "  ")
}

func sarifLevel(severity string) string {
	switch severity {
	case "block", "high", "critical":
		return "error"
	case "warn", "medium":
		return "warning"
	default:
		return "note"
	}
}
