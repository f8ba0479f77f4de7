package usecase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"conductor/internal/domain"
)

func TestClassify(t *testing.T) {
	c := NewErrorClassifier()

	tests := []struct {
		name         string
		err          error
		wantCategory ErrorCategory
		wantSentinel error
		wantStatus   int
	}{
		{"nil", nil, ErrorCategoryUnknown, nil, 0},
		{"wrapped rate limit", fmt.Errorf("openai: %w", domain.ErrRateLimit), ErrorCategoryRetryable, domain.ErrRateLimit, 0},
		{"auth sentinel", fmt.Errorf("anthropic: %w", domain.ErrAuthInvalid), ErrorCategoryPermanent, domain.ErrAuthInvalid, 0},
		{"circuit open", domain.ErrCircuitOpen, ErrorCategoryPermanent, domain.ErrCircuitOpen, 0},
		{"status 429", errors.New("openai: status 429: slow down"), ErrorCategoryRetryable, domain.ErrRateLimit, 429},
		{"API error 503", errors.New("API error 503: unavailable"), ErrorCategoryRetryable, domain.ErrUnavailable, 503},
		{"status 401", errors.New("status 401: bad key"), ErrorCategoryPermanent, domain.ErrAuthInvalid, 401},
		{"status 400", errors.New("status 400: malformed"), ErrorCategoryPermanent, nil, 400},
		{"string rate limit", errors.New("Too Many Requests"), ErrorCategoryRetryable, domain.ErrRateLimit, 0},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorCategoryRetryable, nil, 0},
		{"opaque", errors.New("something odd"), ErrorCategoryUnknown, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.err)
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			if tt.wantSentinel == nil {
				assert.Nil(t, got.Sentinel)
			} else {
				assert.ErrorIs(t, got.Sentinel, tt.wantSentinel)
			}
		})
	}
}

func TestClassifiedErrorRetryable(t *testing.T) {
	c := NewErrorClassifier()
	assert.True(t, c.Classify(domain.ErrRateLimit).Retryable())
	assert.False(t, c.Classify(domain.ErrAuthInvalid).Retryable())
}
