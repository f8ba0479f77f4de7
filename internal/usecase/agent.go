package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

// DefaultMaxIterations bounds the tool-calling loop when nothing else does.
const DefaultMaxIterations = 10

// Retry constants for transient LLM errors.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	Config          domain.AgentConfig
	LLM             domain.LLMProvider
	Tools           domain.ToolExecutor
	Selector        *ModelSelector // optional, nil = always the fixed model
	Logger          *slog.Logger
	MaxIterations   int
	DefaultModel    string
	CostCeiling     *decimal.Decimal       // cost-optimized strategy; nil = DefaultCostCeiling
	Bus             domain.EventBus        // optional, nil = no events
	Metrics         domain.MetricsRecorder // optional, nil = no metrics
	ErrorClassifier *ErrorClassifier       // optional, nil = no retries
}

// Agent runs the tool-calling loop for one configuration. It keeps no
// per-conversation state and is safe for concurrent use.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	// Config.MaxIterations overrides the shared limit when set.
	if deps.Config.MaxIterations > 0 {
		deps.MaxIterations = deps.Config.MaxIterations
	}
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}
	if deps.Config.Strategy == "" {
		deps.Config.Strategy = domain.StrategyAuto
	}
	if deps.CostCeiling == nil {
		ceiling := DefaultCostCeiling
		deps.CostCeiling = &ceiling
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Agent{deps: deps}
}

// Config returns the agent's configuration.
func (a *Agent) Config() domain.AgentConfig { return a.deps.Config }

// ID returns the agent id.
func (a *Agent) ID() string { return a.deps.Config.ID }

// Run drives one conversation turn to completion. Tool failures are fed back
// to the model; LLM errors and the iteration limit end the turn with an error.
func (a *Agent) Run(ctx context.Context, conv domain.ConversationContext) (*domain.AgentResponse, error) {
	cfg := a.deps.Config
	ctx, span := tracer.StartSpan(ctx, "agent.run", trace.WithAttributes(
		tracer.StringAttr("agent.id", cfg.ID),
		tracer.StringAttr("agent.role", string(cfg.Role)),
	))
	defer span.End()

	if conv.ID == "" {
		conv.ID = ulid.Make().String()
	}
	ctx = domain.ContextWithConversationID(ctx, conv.ID)
	ctx = domain.ContextWithAgentID(ctx, cfg.ID)
	logger := a.deps.Logger.With("agent_id", cfg.ID, "conversation_id", conv.ID)

	messages := make([]domain.Message, 0, len(conv.Messages)+1)
	if cfg.SystemPrompt != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: cfg.SystemPrompt})
	}
	messages = append(messages, conv.Messages...)
	schemas := a.deps.Tools.Schemas(cfg.Tools)

	var (
		model   string
		records []domain.ToolCallRecord
		usage   domain.Usage
	)

	for i := 0; i < a.deps.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		if i == 0 {
			model = a.resolveModel(ctx, conv, len(schemas))
			span.SetAttributes(tracer.StringAttr("llm.model", model))
		}
		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		req := domain.ChatRequest{
			Model:       model,
			Messages:    messages,
			Tools:       schemas,
			Temperature: cfg.Temperature,
		}
		a.publish(ctx, domain.EventLLMCallStarted, map[string]any{"model": model, "iteration": i})
		resp, err := a.callLLM(ctx, req)
		if err != nil {
			a.publish(ctx, domain.EventAgentError, map[string]string{"error": err.Error()})
			tracer.RecordError(span, err)
			return nil, err
		}
		a.publish(ctx, domain.EventLLMCallCompleted, map[string]any{
			"model":      model,
			"iteration":  i,
			"tool_calls": len(resp.Message.ToolCalls),
		})

		usage = usage.Add(resp.Usage)
		if a.deps.Metrics != nil {
			a.deps.Metrics.LLMUsage(model, resp.Usage)
		}

		msg := resp.Message
		msg.Role = domain.RoleAssistant
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		for j := range msg.ToolCalls {
			if msg.ToolCalls[j].ID == "" {
				msg.ToolCalls[j].ID = "call_" + ulid.Make().String()
			}
		}
		messages = append(messages, msg)

		logger.Debug("llm response",
			"iteration", i,
			"model", model,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		if len(msg.ToolCalls) == 0 {
			out := a.finish(ctx, logger, model, msg.Content, records, usage, i+1)
			tracer.SetOK(span)
			return out, nil
		}

		// Sequential and in request order: a later call observes the side
		// effects of an earlier one.
		for _, call := range msg.ToolCalls {
			rec := a.executeTool(ctx, call)
			records = append(records, rec)
			messages = append(messages, domain.Message{
				Role:       domain.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    rec.Result.Content(),
				Timestamp:  time.Now(),
			})
		}
	}

	err := domain.NewDomainError("Agent.Run", domain.ErrMaxIterations,
		fmt.Sprintf("agent %q stopped after %d iterations", cfg.ID, a.deps.MaxIterations))
	a.publish(ctx, domain.EventAgentError, map[string]string{"error": err.Error()})
	tracer.RecordError(span, err)
	return nil, err
}

// resolveModel picks the model for the whole turn.
func (a *Agent) resolveModel(ctx context.Context, conv domain.ConversationContext, toolCount int) string {
	cfg := a.deps.Config
	fixed := cfg.Model
	if fixed == "" {
		fixed = a.deps.DefaultModel
	}
	if cfg.Strategy == domain.StrategyFixed || a.deps.Selector == nil {
		return fixed
	}

	complexity := EstimateComplexity(ComplexityInput{
		Role:      cfg.Role,
		Hint:      cfg.ComplexityHint,
		ToolCount: toolCount,
		Message:   conv.LastUserMessage(),
	})

	var ceiling *decimal.Decimal
	if cfg.Strategy == domain.StrategyCostOptimized {
		ceiling = a.deps.CostCeiling
	}
	model := a.deps.Selector.SelectModel(complexity, ceiling)

	a.deps.Logger.Debug("model selected",
		"agent_id", cfg.ID,
		"strategy", string(cfg.Strategy),
		"complexity", complexity.String(),
		"model", model,
	)
	a.publish(ctx, domain.EventModelSelected, map[string]string{
		"strategy":   string(cfg.Strategy),
		"complexity": complexity.String(),
		"model":      model,
	})
	return model
}

// executeTool runs one requested call through the tool executor.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) domain.ToolCallRecord {
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	a.publish(ctx, domain.EventToolCallStarted, map[string]string{"tool": call.Name, "call_id": call.ID})
	start := time.Now()

	var result *domain.ToolResult
	if !json.Valid(args) {
		result = domain.NewToolFailure(fmt.Sprintf("invalid JSON arguments for tool %q", call.Name))
	} else {
		result = a.deps.Tools.Execute(ctx, call.Name, args)
	}
	if result == nil {
		result = domain.NewToolFailure(fmt.Sprintf("tool %q returned no result", call.Name))
	}

	elapsed := time.Since(start)
	a.publish(ctx, domain.EventToolCallCompleted, map[string]any{
		"tool":     call.Name,
		"call_id":  call.ID,
		"success":  result.Success,
		"duration": elapsed.String(),
	})

	return domain.ToolCallRecord{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: args,
		Result:    result,
		Duration:  elapsed,
	}
}

// finish assembles the terminal response. An uncatalogued model only loses
// its cost info.
func (a *Agent) finish(
	ctx context.Context,
	logger *slog.Logger,
	model, content string,
	records []domain.ToolCallRecord,
	usage domain.Usage,
	iterations int,
) *domain.AgentResponse {
	out := &domain.AgentResponse{
		AgentID:    a.deps.Config.ID,
		Content:    content,
		Model:      model,
		ToolCalls:  records,
		Iterations: iterations,
	}
	if !usage.IsZero() {
		out.Usage = new(usage)
		if a.deps.Selector != nil {
			info, err := a.deps.Selector.CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)
			if err != nil {
				logger.Warn("cost unavailable", "model", model, "error", err)
			} else {
				out.Cost = &info
				if a.deps.Metrics != nil {
					a.deps.Metrics.TurnCost(info)
				}
			}
		}
	}

	logger.Info("agent turn completed",
		"model", model,
		"iterations", iterations,
		"tool_calls", len(records),
		"tokens", usage.TotalTokens,
	)
	a.publish(ctx, domain.EventAgentCompleted, map[string]any{
		"model":      model,
		"iterations": iterations,
		"tool_calls": len(records),
	})
	return out
}

// callLLM invokes the provider, retrying transient failures when a classifier is set.
func (a *Agent) callLLM(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	attempts := 1
	if a.deps.ErrorClassifier != nil {
		attempts = maxLLMRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call",
			trace.WithAttributes(tracer.StringAttr("llm.model", req.Model)))
		resp, err := a.deps.LLM.Chat(llmCtx, req)
		if err != nil {
			tracer.RecordError(llmSpan, err)
		}
		llmSpan.End()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if a.deps.ErrorClassifier == nil || !a.deps.ErrorClassifier.Classify(err).Retryable() {
			return nil, err
		}
		if attempt < attempts-1 {
			delay := retryBackoff(attempt)
			a.deps.Logger.Info("retrying LLM call after error",
				"attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func (a *Agent) publish(ctx context.Context, typ domain.EventType, payload any) {
	if a.deps.Bus == nil {
		return
	}
	a.deps.Bus.Publish(ctx, domain.NewEvent(ctx, typ, payload))
}
