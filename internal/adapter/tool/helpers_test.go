package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"conductor/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubTool returns a fixed result or error and records its arguments.
type stubTool struct {
	name   string
	schema json.RawMessage
	result *domain.ToolResult
	err    error
	panics any

	mu    sync.Mutex
	calls []json.RawMessage
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: s.name, Description: s.Description(), Parameters: s.schema}
}

func (s *stubTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, params)
	s.mu.Unlock()
	if s.panics != nil {
		panic(s.panics)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return domain.NewToolSuccess("ok"), nil
	}
	return s.result, nil
}

func (s *stubTool) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type toolMetric struct {
	tool    string
	success bool
}

type recordingMetrics struct {
	mu    sync.Mutex
	tools []toolMetric
}

func (m *recordingMetrics) ToolExecuted(tool string, success bool, _ time.Duration) {
	m.mu.Lock()
	m.tools = append(m.tools, toolMetric{tool, success})
	m.mu.Unlock()
}
func (m *recordingMetrics) LLMUsage(string, domain.Usage) {}
func (m *recordingMetrics) TurnCost(domain.CostInfo)      {}
func (m *recordingMetrics) Delegation(string)             {}

// decode unmarshals a successful result payload into T.
func decode[T any](res *domain.ToolResult) (T, error) {
	var v T
	if res == nil || !res.Success {
		return v, errors.New("not a success result")
	}
	err := json.Unmarshal(res.Result, &v)
	return v, err
}

func repeatJoin(s string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s
	}
	return strings.Join(parts, ",")
}
