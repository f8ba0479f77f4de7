package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"conductor/internal/domain"
)

// --- Mocks ---

type mockLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	errs      []error // consumed before responses when non-nil at the same index
	requests  []domain.ChatRequest
	callIdx   int
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]domain.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	m.requests = append(m.requests, req)

	idx := m.callIdx
	m.callIdx++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.responses) {
		return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: "fallback"},
		}, nil
	}
	return new(m.responses[idx]), nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

// loopingLLM asks for the same tool forever.
type loopingLLM struct{ tool string }

func (l *loopingLLM) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{{ID: "c", Name: l.tool, Arguments: json.RawMessage(`{}`)}},
		},
		Usage: domain.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}, nil
}

func (l *loopingLLM) Name() string { return "looping" }

// mockToolExecutor mirrors the registry contract: unknown names and tool
// errors become failure results.
type mockToolExecutor struct {
	mu    sync.Mutex
	tools map[string]domain.Tool
	order []string
}

func newMockTools(tools ...domain.Tool) *mockToolExecutor {
	m := &mockToolExecutor{tools: make(map[string]domain.Tool)}
	for _, t := range tools {
		m.tools[t.Name()] = t
	}
	return m
}

func (m *mockToolExecutor) Execute(ctx context.Context, name string, args json.RawMessage) *domain.ToolResult {
	m.mu.Lock()
	m.order = append(m.order, name)
	t, ok := m.tools[name]
	m.mu.Unlock()
	if !ok {
		return domain.NewToolFailure(fmt.Sprintf("Tool %q not found", name))
	}
	res, err := t.Execute(ctx, args)
	if err != nil {
		return domain.NewToolFailure(err.Error())
	}
	return res
}

func (m *mockToolExecutor) Schemas(names []string) []domain.ToolSchema {
	var out []domain.ToolSchema
	for _, n := range names {
		if t, ok := m.tools[n]; ok {
			out = append(out, t.Schema())
		}
	}
	return out
}

func (m *mockToolExecutor) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

type staticTool struct {
	name   string
	result any
	delay  time.Duration
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static test tool" }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t *staticTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	return domain.NewToolSuccess(t.result), nil
}

type errorTool struct {
	name string
}

func (t *errorTool) Name() string        { return t.name }
func (t *errorTool) Description() string { return "error test tool" }
func (t *errorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name}
}
func (t *errorTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return nil, fmt.Errorf("tool execution failed")
}

// multiplyTool is a minimal calculator used by the arithmetic scenario.
type multiplyTool struct{}

func (multiplyTool) Name() string        { return "calculator" }
func (multiplyTool) Description() string { return "arithmetic" }
func (multiplyTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: "calculator", Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (multiplyTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var p struct {
		Operation string  `json:"operation"`
		A         float64 `json:"a"`
		B         float64 `json:"b"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if p.Operation != "multiply" {
		return nil, fmt.Errorf("unsupported operation %q", p.Operation)
	}
	return domain.NewToolSuccess(p.A * p.B), nil
}

type recordingMetrics struct {
	mu    sync.Mutex
	tools int
	usage []string
	costs []domain.CostInfo
	deleg []string
}

func (r *recordingMetrics) ToolExecuted(string, bool, time.Duration) {
	r.mu.Lock()
	r.tools++
	r.mu.Unlock()
}
func (r *recordingMetrics) LLMUsage(model string, _ domain.Usage) {
	r.mu.Lock()
	r.usage = append(r.usage, model)
	r.mu.Unlock()
}
func (r *recordingMetrics) TurnCost(info domain.CostInfo) {
	r.mu.Lock()
	r.costs = append(r.costs, info)
	r.mu.Unlock()
}
func (r *recordingMetrics) Delegation(outcome string) {
	r.mu.Lock()
	r.deleg = append(r.deleg, outcome)
	r.mu.Unlock()
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func toolCallResponse(calls ...domain.ToolCall) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, ToolCalls: calls},
		Usage:   domain.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}
}

func textResponse(content string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: content},
		Usage:   domain.Usage{PromptTokens: 150, CompletionTokens: 10, TotalTokens: 160},
	}
}

func userConversation(text string) domain.ConversationContext {
	return domain.ConversationContext{Messages: []domain.Message{{Role: domain.RoleUser, Content: text}}}
}
