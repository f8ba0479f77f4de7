package tool

import (
	"errors"
	"strings"

	"conductor/internal/domain"
)

// retryableSentinels are domain errors for transient failures.
var retryableSentinels = []error{
	domain.ErrTimeout,
	domain.ErrRateLimit,
	domain.ErrCircuitOpen,
	domain.ErrUnavailable,
}

// retryablePatterns match transient failures in errors without a sentinel.
// Compared case-insensitively.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"too many requests",
	"try again",
}

// permanentSentinels are never retried even when the message looks transient.
var permanentSentinels = []error{
	domain.ErrCircularDelegation,
	domain.ErrDelegationDepth,
	domain.ErrAgentNotFound,
	domain.ErrInvalidInput,
	domain.ErrCoordinationTimeout,
}

// classifyToolError reports whether a tool error is transient.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}
	for _, s := range permanentSentinels {
		if errors.Is(err, s) {
			return false
		}
	}
	for _, s := range retryableSentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
