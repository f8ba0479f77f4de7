package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
	"conductor/internal/usecase/multiagent"
)

// DelegateTool lets an agent hand a sub-task to another agent.
type DelegateTool struct {
	broker *multiagent.Broker
	logger *slog.Logger
}

// NewDelegateTool creates the delegate_to_agent tool.
func NewDelegateTool(broker *multiagent.Broker, logger *slog.Logger) *DelegateTool {
	return &DelegateTool{broker: broker, logger: logger}
}

func (t *DelegateTool) Name() string { return "delegate_to_agent" }
func (t *DelegateTool) Description() string {
	return "Delegate a sub-task to another specialised agent and return its answer"
}

func (t *DelegateTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: fmt.Sprintf("%s. Available agents: %s", t.Description(), agentList(t.broker.Registry())),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"agent_id": {"type": "string", "description": "ID of the agent to delegate to"},
				"task": {"type": "string", "description": "The task for that agent"},
				"context": {"type": "string", "description": "Optional background the agent needs"}
			},
			"required": ["agent_id", "task"]
		}`),
	}
}

func (t *DelegateTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.delegate_to_agent", t.logger, params,
		func(ctx context.Context, span trace.Span, p multiagent.DelegateRequest) (any, error) {
			if err := ValidateAll(RequireField("agent_id", p.TargetAgentID), RequireField("task", p.Task)); err != nil {
				return ErrResult("%v", err), nil
			}
			span.SetAttributes(tracer.StringAttr("delegation.to", p.TargetAgentID))
			return t.broker.Delegate(ctx, p)
		},
	)
}

// agentList renders "id (name), ..." for tool descriptions.
func agentList(reg *multiagent.Registry) string {
	cfgs := reg.List()
	if len(cfgs) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		label := c.ID
		if c.Name != "" && c.Name != c.ID {
			label += " (" + c.Name + ")"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}
