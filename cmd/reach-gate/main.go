// Command reach-gate is the CLI entry point for the policy gate (component
// C9's only caller that touches os.Args or the process environment).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"reach/gate/internal/codec"
	"reach/gate/internal/driver"
	"reach/gate/internal/envconfig"
	"reach/gate/internal/errors"
	"reach/gate/internal/report"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	app := kingpin.New("reach-gate", "Policy-driven governance gate for code-review webhook events")
	app.Version(Version)

	gate := app.Command("gate", "Evaluate a webhook event against a policy").Default()
	input := bindGateFlags(gate)

	diff := app.Command("diff", "Compare two report files and print the differences")
	var diffA, diffB string
	diff.Arg("report-a", "first report file").Required().StringVar(&diffA)
	diff.Arg("report-b", "second report file").Required().StringVar(&diffB)

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch cmd {
	case gate.FullCommand():
		os.Exit(runGate(input))
	case diff.FullCommand():
		os.Exit(runDiff(diffA, diffB))
	}
}

// gateInput holds the raw flag destinations kingpin writes into; toOptions
// resolves them (plus environment fallbacks) into a driver.Options.
type gateInput struct {
	policyPath string

	bundlePath     string
	schemaPath     string
	publicKeys     *map[string]string
	trustStorePath string

	orgPolicyPath           string
	localPolicyPath         string
	overrideConstraintsPath string

	eventPath       string
	eventName       string
	provider        string
	reportPath      string
	reportFormat    string
	replayReportPath string
	redact          bool
	exceptionsPath  string

	color     string
	logFormat string
}

func bindGateFlags(cmd *kingpin.CmdClause) *gateInput {
	in := &gateInput{}

	cmd.Flag("policy", "bare policy document").StringVar(&in.policyPath)

	cmd.Flag("policy-bundle", "signed policy bundle").StringVar(&in.bundlePath)
	cmd.Flag("policy-schema", "policy schema file, required with --policy-bundle").StringVar(&in.schemaPath)
	in.publicKeys = cmd.Flag("policy-public-key", "keyId=path, repeatable").StringMap()
	cmd.Flag("policy-trust-store", "trust-store file, alternative to --policy-public-key").StringVar(&in.trustStorePath)

	cmd.Flag("org-policy", "organization-level policy, for the override-merge source").StringVar(&in.orgPolicyPath)
	cmd.Flag("local-policy", "local override policy").StringVar(&in.localPolicyPath)
	cmd.Flag("override-constraints", "allowed/forbidden override path constraints").StringVar(&in.overrideConstraintsPath)

	cmd.Flag("event", "webhook event payload file; falls back to $GITHUB_EVENT_PATH").StringVar(&in.eventPath)
	cmd.Flag("event-name", "webhook event name; falls back to $GITHUB_EVENT_NAME").StringVar(&in.eventName)
	cmd.Flag("provider", "github, gitlab, or bitbucket").Default("github").StringVar(&in.provider)
	cmd.Flag("report", "report output path").StringVar(&in.reportPath)
	cmd.Flag("report-format", "json, md, sarif, or all").Default("json").StringVar(&in.reportFormat)
	cmd.Flag("replay-report", "prior report to compare against for replay determinism").StringVar(&in.replayReportPath)
	cmd.Flag("redact", "redact target bodies in the report (hash only)").BoolVar(&in.redact)
	cmd.Flag("exceptions", "JSON file of exception records").StringVar(&in.exceptionsPath)

	cmd.Flag("color", "auto, always, or never").Default("auto").StringVar(&in.color)
	cmd.Flag("log-format", "text or json; falls back to $REACH_GATE_LOG_FORMAT").StringVar(&in.logFormat)

	return in
}

func (in *gateInput) toOptions() driver.Options {
	var publicKeys map[string]string
	if in.publicKeys != nil {
		publicKeys = *in.publicKeys
	}

	eventPath := in.eventPath
	if eventPath == "" {
		eventPath = os.Getenv("GITHUB_EVENT_PATH")
	}
	eventName := in.eventName
	if eventName == "" {
		eventName = os.Getenv("GITHUB_EVENT_NAME")
	}

	logFormat := envconfig.LogFormat(in.logFormat)
	if logFormat == "" {
		logFormat = envconfig.LogFormatFromEnv()
	}
	var logger driver.EventLogger
	if logFormat == envconfig.LogFormatJSON {
		logger = driver.JSONLLogger{W: os.Stderr}
	} else {
		logger = driver.TextLogger{W: os.Stderr}
	}

	return driver.Options{
		PolicyPath: in.policyPath,

		BundlePath:     in.bundlePath,
		SchemaPath:     in.schemaPath,
		PublicKeys:     publicKeys,
		TrustStorePath: in.trustStorePath,

		OrgPolicyPath:           in.orgPolicyPath,
		LocalPolicyPath:         in.localPolicyPath,
		OverrideConstraintsPath: in.overrideConstraintsPath,

		EventPath: eventPath,
		EventName: eventName,
		Provider:  in.provider,

		ReportPath:       in.reportPath,
		ReportFormat:     report.Format(in.reportFormat),
		ReplayReportPath: in.replayReportPath,
		Redact:           in.redact,
		ExceptionsPath:   in.exceptionsPath,

		EnvTokens: envconfig.LoadProviderTokens("GITHUB_TOKEN", "GITLAB_TOKEN", "BITBUCKET_TOKEN"),
		Logger:    logger,
	}
}

func runGate(in *gateInput) int {
	result, err := driver.Run(context.Background(), in.toOptions())
	if err != nil {
		fmt.Fprintln(os.Stderr, styleBlock(in.color).Render(fmt.Sprintf("[%s] %v", errorCode(err), err)))
		return 1
	}
	printSummary(in.color, result.Report)
	return result.ExitCode
}

func errorCode(err error) string {
	if ge, ok := err.(*errors.GateError); ok {
		return string(ge.Code)
	}
	return "E_INTERNAL"
}

func runDiff(pathA, pathB string) int {
	a, err := readReport(pathA)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	b, err := readReport(pathB)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	d := codec.DiffReports(a, b)
	fmt.Print(d.FormatDiff())
	if d.MismatchFound {
		return 1
	}
	return 0
}

func readReport(path string) (report.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return report.Report{}, fmt.Errorf("read %s: %w", path, err)
	}
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return report.Report{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}

func colorEnabled(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return isatty.IsTerminal(os.Stdout.Fd())
	}
}

func styleBlock(colorMode string) lipgloss.Style {
	if !colorEnabled(colorMode) {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
}

func styleWarn(colorMode string) lipgloss.Style {
	if !colorEnabled(colorMode) {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
}

func stylePass(colorMode string) lipgloss.Style {
	if !colorEnabled(colorMode) {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
}

func printSummary(colorMode string, r report.Report) {
	var style lipgloss.Style
	switch r.Decision {
	case "pass":
		style = stylePass(colorMode)
	case "warn":
		style = styleWarn(colorMode)
	default:
		style = styleBlock(colorMode)
	}
	fmt.Println(style.Render(fmt.Sprintf("reach-gate: %s (%d finding(s))", r.Decision, len(r.Findings))))
	for _, f := range r.Findings {
		fmt.Printf("  [%s] %s: %s\n", f.Severity, f.Code, f.Message)
	}
}
