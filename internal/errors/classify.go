package errors

import (
	"context"
	"errors"
	"net"
	"os"
)

// Classify maps an unknown error onto a *GateError at a system boundary
// (reading a policy file, dialing a provider API), so every error that
// reaches the driver is typed and serializable.
func Classify(err error) *GateError {
	if err == nil {
		return nil
	}

	if ge, ok := err.(*GateError); ok {
		return ge
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeInternal, "operation timed out").WithCause(err).SetRetryable(true)
	}
	if errors.Is(err, context.Canceled) {
		return New(CodeInternal, "operation cancelled").WithCause(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(CodeInternal, "network timeout").WithCause(err).SetRetryable(true)
		}
		return New(CodeInternal, "network error").WithCause(err).SetRetryable(true)
	}

	if errors.Is(err, os.ErrNotExist) {
		return New(CodeArgInvalid, "file not found").WithCause(err)
	}
	if errors.Is(err, os.ErrPermission) {
		return New(CodeArgInvalid, "permission denied").WithCause(err)
	}

	return New(CodeUnknown, "an unexpected error occurred").WithCause(err)
}
