// Package envconfig reads process environment variables once at the edge
// and threads them through as explicit values, grounded on the teacher's
// internal/packkit/config.AllowUnsigned and policy.ModeFromEnv (no hidden
// globals — §9).
package envconfig

import (
	"os"
	"strings"
)

// ProviderTokens is the set of provider-token environment variables a
// driver invocation may need, keyed by the env var name each provider
// adapter reports via Provider.ApprovalTokenEnvVar.
type ProviderTokens map[string]string

// LoadProviderTokens reads the given env var names once.
func LoadProviderTokens(envVars ...string) ProviderTokens {
	tokens := make(ProviderTokens, len(envVars))
	for _, v := range envVars {
		if val := os.Getenv(v); val != "" {
			tokens[v] = val
		}
	}
	return tokens
}

// LogFormat is the structured-logging mode selected at the edge, with an
// environment fallback when --log-format was not passed explicitly.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogFormatFromEnv mirrors ModeFromEnv's "read once, default sensibly"
// shape: REACH_GATE_LOG_FORMAT=json opts into structured logs outside of
// an explicit --log-format flag.
func LogFormatFromEnv() LogFormat {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("REACH_GATE_LOG_FORMAT")), "json") {
		return LogFormatJSON
	}
	return LogFormatText
}
