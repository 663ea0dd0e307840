package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// doRequestWithRetry executes req under the uniform retry/rate-limit
// algorithm (§4.4) and returns the successful response body. rateLimitHeader
// is the provider-specific epoch-seconds header name (only provider A sets
// one); pass "" for providers without it.
func doRequestWithRetry(ctx context.Context, client HTTPClient, cfg RetryConfig, rateLimitHeader string, newReq func() (*http.Request, error)) ([]byte, *attemptLog, error) {
	log := &attemptLog{}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := time.Duration(cfg.FetchTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, log, &ApprovalError{Kind: ErrKindFetchError, Message: err.Error(), AttemptLog: log.entries}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := client.Do(req.WithContext(attemptCtx))
		cancel()

		if err != nil {
			timedOut := errors.Is(err, context.DeadlineExceeded)
			kind := ErrKindFetchError
			if timedOut {
				kind = ErrKindTimeout
			}
			log.record(AttemptLogEntry{Attempt: attempt, Error: err.Error()})
			if !cfg.Enabled || attempt == maxAttempts {
				if timedOut {
					return nil, log, &ApprovalError{Kind: ErrKindTimeout, Message: "request timed out", AttemptLog: log.entries}
				}
				return nil, log, &ApprovalError{Kind: ErrKindFetchError, Message: err.Error(), AttemptLog: log.entries}
			}
			if !sleepBeforeRetry(ctx, attempt, cfg, nil, rateLimitHeader, log) {
				return nil, log, &ApprovalError{Kind: kind, Message: "cancelled during retry backoff", AttemptLog: log.entries}
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			log.record(AttemptLogEntry{Attempt: attempt, StatusCode: resp.StatusCode, Error: readErr.Error()})
			return nil, log, &ApprovalError{Kind: ErrKindFetchError, Message: readErr.Error(), AttemptLog: log.entries}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.record(AttemptLogEntry{Attempt: attempt, StatusCode: resp.StatusCode})
			return body, log, nil
		}

		log.record(AttemptLogEntry{Attempt: attempt, StatusCode: resp.StatusCode})
		if !isRetryableStatus(resp.StatusCode, cfg) {
			return nil, log, &ApprovalError{Kind: ErrKindHTTPError, Message: http.StatusText(resp.StatusCode), AttemptLog: log.entries}
		}
		if !cfg.Enabled || attempt == maxAttempts {
			kind := ErrKindRetryExhausted
			if resp.StatusCode == http.StatusTooManyRequests {
				kind = ErrKindRateLimited
			}
			return nil, log, &ApprovalError{Kind: kind, Message: "retries exhausted", AttemptLog: log.entries}
		}
		if !sleepBeforeRetry(ctx, attempt, cfg, resp, rateLimitHeader, log) {
			return nil, log, &ApprovalError{Kind: ErrKindRateLimited, Message: "cancelled during retry backoff", AttemptLog: log.entries}
		}
	}
	return nil, log, &ApprovalError{Kind: ErrKindRetryExhausted, Message: "retries exhausted", AttemptLog: log.entries}
}

// sleepBeforeRetry blocks for the computed delay (or until ctx is done,
// returning false). resp may be nil when the previous attempt failed
// below the HTTP layer (network error, no response to read headers from).
func sleepBeforeRetry(ctx context.Context, attempt int, cfg RetryConfig, resp *http.Response, rateLimitHeader string, log *attemptLog) bool {
	delay := calculateDelay(attempt, cfg)
	if hinted := serverHintedDelay(resp, rateLimitHeader); hinted > delay {
		delay = hinted
	}
	maxDelay := time.Duration(cfg.MaxDelayMs) * time.Millisecond
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if len(log.entries) > 0 {
		log.entries[len(log.entries)-1].DelayMs = int(delay / time.Millisecond)
	}
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
