// Package exception implements the exception filter (component C7): removal
// of findings that match a time-bounded exception record, with deterministic
// first-match attribution.
package exception

import (
	"sort"
	"time"

	"reach/gate/internal/domain"
)

// Record is a time-bounded suppression of findings by code (§4.8).
type Record struct {
	Check     string    `json:"check"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Applied records one exception's attribution against a removed finding (§3).
type Applied struct {
	Check     string        `json:"check"`
	Reason    string        `json:"reason"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Domain    string        `json:"domain"`
}

// Result is the exception filter's output.
type Result struct {
	Findings          []domain.ShadowFinding
	ExceptionsApplied []Applied
}

// Filter removes any finding whose code matches an active (non-expired)
// exception, recording first-match attribution sorted by (check, expiresAt)
// when multiple exceptions share a code (§4.8).
func Filter(findings []domain.ShadowFinding, exceptions []Record, now time.Time) Result {
	active := make([]Record, 0, len(exceptions))
	for _, e := range exceptions {
		if !e.ExpiresAt.Before(now) {
			active = append(active, e)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Check != active[j].Check {
			return active[i].Check < active[j].Check
		}
		return active[i].ExpiresAt.Before(active[j].ExpiresAt)
	})

	firstByCheck := make(map[string]Record, len(active))
	for _, e := range active {
		if _, ok := firstByCheck[e.Check]; !ok {
			firstByCheck[e.Check] = e
		}
	}

	var kept []domain.ShadowFinding
	var applied []Applied
	for _, f := range findings {
		rec, ok := firstByCheck[f.Code]
		if !ok {
			kept = append(kept, f)
			continue
		}
		applied = append(applied, Applied{
			Check: rec.Check, Reason: rec.Reason, ExpiresAt: rec.ExpiresAt, Domain: string(f.Domain),
		})
	}

	return Result{Findings: kept, ExceptionsApplied: applied}
}
