package driver

import (
	"encoding/json"
	"fmt"
	"io"
)

// EventLogger receives one structured event per pipeline stage, grounded
// on githubbridge's Logger interface — a single Log(map[string]any) method
// rather than per-level methods, so the driver itself stays agnostic to
// whether a call is logged as JSON or text.
type EventLogger interface {
	Log(event map[string]any)
}

// NopLogger discards every event; Run uses it when Options.Logger is nil.
type NopLogger struct{}

func (NopLogger) Log(map[string]any) {}

// JSONLLogger writes one JSON object per line to W (§ "Logging" ambient
// stack: --log-format=json).
type JSONLLogger struct {
	W io.Writer
}

func (l JSONLLogger) Log(event map[string]any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintln(l.W, string(data))
}

// TextLogger writes a terse human line per stage (the default when
// --log-format is not "json").
type TextLogger struct {
	W io.Writer
}

func (l TextLogger) Log(event map[string]any) {
	stage, _ := event["stage"].(string)
	fmt.Fprintf(l.W, "reach-gate: %s", stage)
	for k, v := range event {
		if k == "stage" {
			continue
		}
		fmt.Fprintf(l.W, " %s=%v", k, v)
	}
	fmt.Fprintln(l.W)
}
