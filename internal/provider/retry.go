package provider

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mathrand "math/rand"
	"net/http"
	"strconv"
	"time"
)

// jitterSource is a process-wide RNG seeded from crypto/rand, so jitter
// varies run to run in production. Tests rely on cfg.JitterRatio=0 for
// determinism, per §5, rather than on the RNG itself being predictable.
var jitterSource = mathrand.New(mathrand.NewSource(seedFromCryptoRand()))

func seedFromCryptoRand() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// calculateDelay implements §4.4's backoff formula: exponential growth
// capped at maxDelayMs, plus uniform jitter in [0, delay*jitterRatio].
func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	base := float64(cfg.BaseDelayMs)
	delay := base * math.Pow(2, float64(attempt-1))
	maxDelay := float64(cfg.MaxDelayMs)
	if maxDelay <= 0 {
		maxDelay = 30000
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	if cfg.JitterRatio > 0 {
		delay += delay * cfg.JitterRatio * jitterSource.Float64()
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return time.Duration(delay) * time.Millisecond
}

// serverHintedDelay reads Retry-After (seconds or HTTP-date) or, for
// provider A, X-RateLimit-Reset (epoch seconds), returning 0 if absent.
func serverHintedDelay(resp *http.Response, rateLimitResetHeader string) time.Duration {
	if resp == nil {
		return 0
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(ra); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	if rateLimitResetHeader != "" {
		if reset := resp.Header.Get(rateLimitResetHeader); reset != "" {
			if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
				if d := time.Until(time.Unix(epoch, 0)); d > 0 {
					return d
				}
			}
		}
	}
	return 0
}

func isRetryableStatus(status int, cfg RetryConfig) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	for _, c := range cfg.RetryableStatusCodes {
		if c == status {
			return true
		}
	}
	return false
}

// attemptLog bounds the diagnostics list to the last 20 entries (§4.4).
type attemptLog struct {
	entries []AttemptLogEntry
}

func (l *attemptLog) record(e AttemptLogEntry) {
	l.entries = append(l.entries, e)
	if len(l.entries) > 20 {
		l.entries = l.entries[len(l.entries)-20:]
	}
}
