package usecase

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"conductor/internal/domain"
)

// ErrorCategory indicates whether an error is retryable or permanent.
type ErrorCategory int

const (
	ErrorCategoryUnknown   ErrorCategory = iota
	ErrorCategoryRetryable               // 429, 5xx, connection errors
	ErrorCategoryPermanent               // 401, 403, 4xx, malformed
)

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Category   ErrorCategory
	Sentinel   error // mapped domain sentinel, or nil
	StatusCode int   // extracted HTTP status, or 0 if unknown
}

// Retryable reports whether another attempt may succeed.
func (c ClassifiedError) Retryable() bool { return c.Category == ErrorCategoryRetryable }

// ErrorClassifier sorts LLM provider errors into retryable and permanent.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// statusPattern matches "status 429" and "API error 429:" as produced by the provider adapters.
var statusPattern = regexp.MustCompile(`(?:status|API error) (\d{3})`)

var sentinelCategories = []struct {
	sentinel error
	category ErrorCategory
}{
	{domain.ErrRateLimit, ErrorCategoryRetryable},
	{domain.ErrTimeout, ErrorCategoryRetryable},
	{domain.ErrUnavailable, ErrorCategoryRetryable},
	{domain.ErrContextOverflow, ErrorCategoryPermanent},
	{domain.ErrAuthInvalid, ErrorCategoryPermanent},
	{domain.ErrCircuitOpen, ErrorCategoryPermanent},
	{domain.ErrProviderNotFound, ErrorCategoryPermanent},
}

var transientFragments = []string{
	"connection refused", "no such host", "timeout",
	"deadline exceeded", "connection reset", "eof",
}

// Classify inspects an error and returns its category and mapped sentinel.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}
	for _, sc := range sentinelCategories {
		if errors.Is(err, sc.sentinel) {
			return ClassifiedError{Original: err, Category: sc.category, Sentinel: sc.sentinel}
		}
	}

	msg := err.Error()
	if m := statusPattern.FindStringSubmatch(msg); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classifyStatus(err, code)
	}

	lower := strings.ToLower(msg)
	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests") {
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrRateLimit}
	}
	for _, frag := range transientFragments {
		if strings.Contains(lower, frag) {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable}
		}
	}
	return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
}

func classifyStatus(err error, code int) ClassifiedError {
	out := ClassifiedError{Original: err, StatusCode: code, Category: ErrorCategoryPermanent}
	switch {
	case code == 429:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrRateLimit
	case code == 401 || code == 403:
		out.Sentinel = domain.ErrAuthInvalid
	case code == 408:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrTimeout
	case code >= 500 && code < 600:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrUnavailable
	}
	return out
}
