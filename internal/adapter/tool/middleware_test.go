package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
)

type echoParams struct {
	Text string `json:"text"`
}

func runEcho(params string, handler func(context.Context, trace.Span, echoParams) (any, error)) *domain.ToolResult {
	res, _ := Execute(context.Background(), "tool.echo", testLogger(), json.RawMessage(params), handler)
	return res
}

func TestExecuteWrapsValue(t *testing.T) {
	res := runEcho(`{"text":"hi"}`, func(_ context.Context, _ trace.Span, p echoParams) (any, error) {
		return map[string]string{"echo": p.Text}, nil
	})
	require.True(t, res.Success)
	assert.JSONEq(t, `{"echo":"hi"}`, string(res.Result))
}

func TestExecuteEmptyParams(t *testing.T) {
	res := runEcho("", func(_ context.Context, _ trace.Span, p echoParams) (any, error) {
		return p.Text == "", nil
	})
	require.True(t, res.Success)
	assert.Equal(t, "true", string(res.Result))
}

func TestExecuteInvalidParams(t *testing.T) {
	called := false
	res := runEcho(`{"text":`, func(context.Context, trace.Span, echoParams) (any, error) {
		called = true
		return nil, nil
	})
	assert.False(t, called)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid params")
}

func TestExecuteHandlerErrors(t *testing.T) {
	res := runEcho(`{}`, func(context.Context, trace.Span, echoParams) (any, error) {
		return nil, errors.New("bad input")
	})
	assert.False(t, res.Success)
	assert.False(t, res.IsRetryable)
	assert.Equal(t, "bad input", res.Error)

	res = runEcho(`{}`, func(context.Context, trace.Span, echoParams) (any, error) {
		return nil, fmt.Errorf("upstream: %w", domain.ErrTimeout)
	})
	assert.True(t, res.IsRetryable)
	assert.Contains(t, res.Error, "may succeed on retry")
}

func TestExecutePassesThroughResult(t *testing.T) {
	res := runEcho(`{}`, func(context.Context, trace.Span, echoParams) (any, error) {
		return ErrResult("need %s", "text"), nil
	})
	assert.False(t, res.Success)
	assert.Equal(t, "need text", res.Error)
}

func TestExecuteUnmarshalableValue(t *testing.T) {
	res := runEcho(`{}`, func(context.Context, trace.Span, echoParams) (any, error) {
		return make(chan int), nil
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "marshal result")
}

func TestClassifyToolError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("permission denied"), false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("Service Unavailable"), true},
		{fmt.Errorf("x: %w", domain.ErrRateLimit), true},
		{fmt.Errorf("x: %w", domain.ErrCircuitOpen), true},
		{fmt.Errorf("x: %w", domain.ErrCoordinationTimeout), false},
		{fmt.Errorf("x: %w", domain.ErrCircularDelegation), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyToolError(tt.err), "%v", tt.err)
	}
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateEnum("op", "", "a", "b"))
	assert.NoError(t, ValidateEnum("op", "a", "a", "b"))
	assert.EqualError(t, ValidateEnum("op", "c", "a", "b"), `invalid op "c" (want: a, b)`)
	assert.EqualError(t, ValidateRange("limit", 0, 1, 5), "limit must be 1-5, got 0")
	assert.NoError(t, ValidateURL("url", "https://example.com/x"))
	assert.Error(t, ValidateAll(nil, RequireField("q", "")))
}
