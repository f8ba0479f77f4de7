package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"conductor/internal/domain"
)

// DefaultRateLimitWait is how long a rate-limited call may queue for a token.
const DefaultRateLimitWait = 5 * time.Second

// RateLimitedTool throttles calls to an inner tool with a token bucket.
type RateLimitedTool struct {
	domain.Tool
	limiter *rate.Limiter
	maxWait time.Duration
}

// WithRateLimit allows perMinute calls per minute with the given burst.
// A call that cannot get a token within maxWait fails as retryable.
func WithRateLimit(t domain.Tool, perMinute float64, burst int, maxWait time.Duration) *RateLimitedTool {
	if burst < 1 {
		burst = 1
	}
	if maxWait <= 0 {
		maxWait = DefaultRateLimitWait
	}
	return &RateLimitedTool{
		Tool:    t,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
		maxWait: maxWait,
	}
}

func (r *RateLimitedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()

	if err := r.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res := domain.NewToolFailure(fmt.Sprintf("%s: %v, try again later", r.Name(), domain.ErrRateLimit))
		res.IsRetryable = true
		return res, nil
	}
	return r.Tool.Execute(ctx, params)
}
