package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
	"conductor/internal/usecase/multiagent"
)

const maxCoordinatedTasks = 10

// CoordinateTool fans a batch of tasks out to several agents at once.
type CoordinateTool struct {
	broker *multiagent.Broker
	logger *slog.Logger
}

// NewCoordinateTool creates the coordinate_agents tool.
func NewCoordinateTool(broker *multiagent.Broker, logger *slog.Logger) *CoordinateTool {
	return &CoordinateTool{broker: broker, logger: logger}
}

func (t *CoordinateTool) Name() string { return "coordinate_agents" }
func (t *CoordinateTool) Description() string {
	return "Run several independent tasks on several agents in parallel and collect all results"
}

func (t *CoordinateTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: fmt.Sprintf("%s. Available agents: %s", t.Description(), agentList(t.broker.Registry())),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"tasks": {
					"type": "array",
					"minItems": 1,
					"maxItems": 10,
					"items": {
						"type": "object",
						"properties": {
							"agent_id": {"type": "string"},
							"task": {"type": "string"}
						},
						"required": ["agent_id", "task"]
					}
				},
				"timeout_ms": {"type": "integer", "minimum": 1, "description": "Deadline for the whole batch (default 60000)"}
			},
			"required": ["tasks"]
		}`),
	}
}

type coordinateParams struct {
	Tasks     []multiagent.CoordinationTask `json:"tasks"`
	TimeoutMs int64                         `json:"timeout_ms"`
}

func (t *CoordinateTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.coordinate_agents", t.logger, params,
		func(ctx context.Context, span trace.Span, p coordinateParams) (any, error) {
			if len(p.Tasks) == 0 {
				return ErrResult("'tasks' must contain at least one task"), nil
			}
			if len(p.Tasks) > maxCoordinatedTasks {
				return ErrResult("at most %d tasks may be coordinated at once", maxCoordinatedTasks), nil
			}
			span.SetAttributes(tracer.IntAttr("coordination.tasks", len(p.Tasks)))
			return t.broker.Coordinate(ctx, multiagent.CoordinateRequest{
				Tasks:   p.Tasks,
				Timeout: time.Duration(p.TimeoutMs) * time.Millisecond,
			})
		},
	)
}
