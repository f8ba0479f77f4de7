package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

// defaultMaxTokens caps completions when neither the request nor the provider config sets a limit.
const defaultMaxTokens = 4096

// startChatSpan opens the llm.chat span shared by all providers.
func startChatSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", provider),
			tracer.StringAttr("llm.model", model),
		),
	)
}

// logChatCompleted logs the standard debug message after a successful LLM chat.
func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse, elapsed time.Duration) {
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
		"tool_calls", len(result.Message.ToolCalls),
		"duration", elapsed,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

// mapHTTPError maps an API status code to a domain sentinel so the error
// classifier and circuit breaker can tell transient failures from permanent ones.
func mapHTTPError(statusCode int, detail string) error {
	msg := fmt.Sprintf("API error %d: %s", statusCode, strings.TrimSpace(detail))

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
	case statusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, msg)
	case statusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s", domain.ErrTimeout, msg)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, msg)
	default:
		return errors.New(msg)
	}
}

// mapTransportError normalizes a non-API error from an SDK call.
func mapTransportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", provider, domain.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}

// newCallID mints an identifier for tool calls a provider returned without one.
func newCallID() string {
	return "call_" + strings.ToLower(ulid.Make().String())
}

func effectiveMaxTokens(req, cfg int) int64 {
	switch {
	case req > 0:
		return int64(req)
	case cfg > 0:
		return int64(cfg)
	}
	return defaultMaxTokens
}
