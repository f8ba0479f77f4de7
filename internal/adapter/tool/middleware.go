package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

// Execute is the standard tool pipeline: parse params, start a span, run the
// handler and wrap its value.
//
// The handler returns either:
//   - (value, nil): the value is marshaled into a success result
//   - (*domain.ToolResult, nil): returned as-is
//   - (nil, error): a failure result, flagged retryable for transient errors
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	p, bad := ParseParams[P](rawParams)
	if bad != nil {
		tracer.RecordError(span, fmt.Errorf("%s", bad.Error))
		return bad, nil
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)

		res := domain.NewToolFailure(err.Error())
		if classifyToolError(err) {
			res.IsRetryable = true
			res.Error += " (transient error, may succeed on retry)"
		}
		return res, nil
	}

	if res, ok := result.(*domain.ToolResult); ok {
		if res.Success {
			tracer.SetOK(span)
		} else {
			tracer.RecordError(span, fmt.Errorf("%s", res.Error))
		}
		return res, nil
	}
	res := domain.NewToolSuccess(result)
	if !res.Success {
		tracer.RecordError(span, fmt.Errorf("%s", res.Error))
	} else {
		tracer.SetOK(span)
	}
	return res, nil
}

// ParseParams unmarshals rawParams into P. Empty params decode as {}.
// On failure the returned result is a ready-made failure.
func ParseParams[P any](rawParams json.RawMessage) (P, *domain.ToolResult) {
	var p P
	if len(rawParams) == 0 {
		rawParams = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, domain.NewToolFailure(fmt.Sprintf("invalid params: %v", err))
	}
	return p, nil
}

// ErrResult builds a failure result for input problems that should go back
// to the model without being logged as tool failures.
func ErrResult(format string, args ...any) *domain.ToolResult {
	return domain.NewToolFailure(fmt.Sprintf(format, args...))
}
