package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool: either a success carrying
// a result payload or a failure carrying an error message, never both.
type ToolResult struct {
	Success     bool            `json:"success"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	IsRetryable bool            `json:"-"`
}

// NewToolSuccess marshals v into a successful result. A value that cannot be
// marshaled yields a failure result instead.
func NewToolSuccess(v any) *ToolResult {
	if raw, ok := v.(json.RawMessage); ok {
		return &ToolResult{Success: true, Result: raw}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return NewToolFailure("marshal result: " + err.Error())
	}
	return &ToolResult{Success: true, Result: data}
}

// NewToolFailure builds a failure result.
func NewToolFailure(msg string) *ToolResult {
	return &ToolResult{Success: false, Error: msg}
}

// Content serializes the result for the tool message fed back to the model.
func (r *ToolResult) Content() string {
	if r == nil {
		return `{"success":false,"error":"no result"}`
	}
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unserializable result"}`
	}
	return string(data)
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor resolves tool schemas and runs tools by name. Execute never
// returns an error: every failure is folded into the returned ToolResult.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) *ToolResult
	Schemas(names []string) []ToolSchema
}
