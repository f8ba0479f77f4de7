package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

const (
	// DefaultCoordinationTimeout bounds a Coordinate call when the request sets none.
	DefaultCoordinationTimeout = 60 * time.Second
	// DefaultMaxDelegationDepth caps nested delegations within one top-level turn.
	DefaultMaxDelegationDepth = 5
)

// Delegation metadata keys set on the sub-agent's conversation.
const (
	MetaDelegatedBy     = "delegated_by"
	MetaDelegationKey   = "delegation_key"
	MetaDelegationDepth = "delegation_depth"
	MetaCoordinatedBy   = "coordinated_by"
)

// BrokerOptions tunes delegation and coordination limits.
type BrokerOptions struct {
	MaxDelegationDepth  int
	CoordinationTimeout time.Duration
}

// Broker runs agent turns on behalf of other agents.
type Broker struct {
	registry *Registry
	active   *ActiveDelegations
	bus      domain.EventBus
	metrics  domain.MetricsRecorder
	logger   *slog.Logger
	opts     BrokerOptions
}

// NewBroker creates a broker. bus and metrics may be nil.
func NewBroker(
	registry *Registry,
	active *ActiveDelegations,
	bus domain.EventBus,
	metrics domain.MetricsRecorder,
	logger *slog.Logger,
	opts BrokerOptions,
) *Broker {
	if active == nil {
		active = NewActiveDelegations()
	}
	if opts.MaxDelegationDepth <= 0 {
		opts.MaxDelegationDepth = DefaultMaxDelegationDepth
	}
	if opts.CoordinationTimeout <= 0 {
		opts.CoordinationTimeout = DefaultCoordinationTimeout
	}
	return &Broker{
		registry: registry,
		active:   active,
		bus:      bus,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// Registry returns the agent registry the broker resolves targets from.
func (b *Broker) Registry() *Registry { return b.registry }

// Active returns the in-flight delegation set.
func (b *Broker) Active() *ActiveDelegations { return b.active }

// DelegateRequest asks one agent to handle a sub-task.
type DelegateRequest struct {
	TargetAgentID string `json:"agent_id"`
	Task          string `json:"task"`
	Context       string `json:"context,omitempty"`
}

// DelegateResult is the outcome of a successful delegation.
type DelegateResult struct {
	AgentID   string           `json:"agent_id"`
	Task      string           `json:"task"`
	Response  string           `json:"response"`
	ToolsUsed []string         `json:"tools_used"`
	Usage     *domain.Usage    `json:"usage,omitempty"`
	Cost      *domain.CostInfo `json:"cost,omitempty"`
}

// Delegate runs the target agent on the task. A request whose key is already
// in flight fails with ErrCircularDelegation before any work starts.
func (b *Broker) Delegate(ctx context.Context, req DelegateRequest) (*DelegateResult, error) {
	if req.TargetAgentID == "" || req.Task == "" {
		return nil, fmt.Errorf("%w: agent_id and task are required", domain.ErrInvalidInput)
	}

	from := domain.AgentIDFromContext(ctx)
	depth := domain.DelegationDepthFromContext(ctx)
	key := DelegationKey(req.TargetAgentID, req.Task)

	ctx, span := tracer.StartSpan(ctx, "multiagent.delegate", trace.WithAttributes(
		tracer.StringAttr("delegation.from", from),
		tracer.StringAttr("delegation.to", req.TargetAgentID),
		tracer.IntAttr("delegation.depth", depth),
	))
	defer span.End()

	if depth >= b.opts.MaxDelegationDepth {
		err := fmt.Errorf("%w: depth %d reached delegating to %q", domain.ErrDelegationDepth, depth, req.TargetAgentID)
		b.recordDelegation("depth_exceeded")
		tracer.RecordError(span, err)
		return nil, err
	}

	release, err := b.active.Acquire(key)
	if err != nil {
		b.logger.Warn("circular delegation rejected", "from", from, "to", req.TargetAgentID, "key", key)
		b.recordDelegation("circular")
		tracer.RecordError(span, err)
		return nil, err
	}
	defer release()

	target, err := b.registry.Get(req.TargetAgentID)
	if err != nil {
		b.recordDelegation("not_found")
		tracer.RecordError(span, err)
		return nil, err
	}

	content := req.Task
	if req.Context != "" {
		content += "\n\nAdditional context: " + req.Context
	}
	conv := domain.ConversationContext{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: content, Timestamp: time.Now()}},
		Metadata: map[string]string{
			MetaDelegatedBy:     from,
			MetaDelegationKey:   key,
			MetaDelegationDepth: strconv.Itoa(depth + 1),
		},
	}

	b.logger.Info("delegating", "from", from, "to", req.TargetAgentID, "depth", depth+1)
	b.publish(ctx, domain.EventAgentDelegated, map[string]any{
		"from":  from,
		"to":    req.TargetAgentID,
		"depth": depth + 1,
	})

	resp, err := target.Run(domain.ContextWithDelegationDepth(ctx, depth+1), conv)
	if err != nil {
		b.recordDelegation("error")
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("delegate to %q: %w", req.TargetAgentID, err)
	}

	b.recordDelegation("success")
	tracer.SetOK(span)
	return &DelegateResult{
		AgentID:   req.TargetAgentID,
		Task:      req.Task,
		Response:  resp.Content,
		ToolsUsed: resp.ToolNames(),
		Usage:     resp.Usage,
		Cost:      resp.Cost,
	}, nil
}

// CoordinationTask is one (agent, task) pair in a fan-out.
type CoordinationTask struct {
	AgentID string `json:"agent_id"`
	Task    string `json:"task"`
}

// CoordinateRequest fans tasks out concurrently. Timeout defaults to 60s.
type CoordinateRequest struct {
	Tasks   []CoordinationTask `json:"tasks"`
	Timeout time.Duration      `json:"-"`
}

// TaskOutcome is the result of one coordinated task.
type TaskOutcome struct {
	AgentID    string `json:"agent_id"`
	Task       string `json:"task"`
	Success    bool   `json:"success"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// CoordinationSummary aggregates a fan-out. TotalDurationMs is the slowest task.
type CoordinationSummary struct {
	Total           int   `json:"total"`
	Successful      int   `json:"successful"`
	Failed          int   `json:"failed"`
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// CoordinateResult holds per-task outcomes in request order.
type CoordinateResult struct {
	Results []TaskOutcome       `json:"results"`
	Summary CoordinationSummary `json:"summary"`
}

// Coordinate runs every task concurrently. A failing task does not affect
// the others. If the deadline passes before all tasks finish, the whole call
// fails with ErrCoordinationTimeout and the members' context is cancelled.
func (b *Broker) Coordinate(ctx context.Context, req CoordinateRequest) (*CoordinateResult, error) {
	if len(req.Tasks) == 0 {
		return nil, fmt.Errorf("%w: at least one task is required", domain.ErrInvalidInput)
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.opts.CoordinationTimeout
	}

	ctx, span := tracer.StartSpan(ctx, "multiagent.coordinate", trace.WithAttributes(
		tracer.IntAttr("coordination.tasks", len(req.Tasks)),
		tracer.StringAttr("coordination.timeout", timeout.String()),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	from := domain.AgentIDFromContext(ctx)
	depth := domain.DelegationDepthFromContext(ctx)
	memberCtx := domain.ContextWithDelegationDepth(runCtx, depth+1)

	results := make([]TaskOutcome, len(req.Tasks))
	var wg sync.WaitGroup
	for i, task := range req.Tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = b.runTask(memberCtx, from, depth+1, task)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		select {
		case <-done:
		default:
			err := runCtx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w after %s", domain.ErrCoordinationTimeout, timeout)
			}
			b.logger.Warn("coordination abandoned", "tasks", len(req.Tasks), "error", err)
			tracer.RecordError(span, err)
			return nil, err
		}
	}

	out := &CoordinateResult{Results: results, Summary: CoordinationSummary{Total: len(results)}}
	for _, r := range results {
		if r.Success {
			out.Summary.Successful++
		} else {
			out.Summary.Failed++
		}
		out.Summary.TotalDurationMs = max(out.Summary.TotalDurationMs, r.DurationMs)
	}

	b.logger.Info("coordination completed",
		"total", out.Summary.Total,
		"successful", out.Summary.Successful,
		"failed", out.Summary.Failed,
		"duration_ms", out.Summary.TotalDurationMs,
	)
	b.publish(ctx, domain.EventCoordinationCompleted, out.Summary)
	tracer.SetOK(span)
	return out, nil
}

// runTask resolves one coordinated task. Panics and errors become failed outcomes.
func (b *Broker) runTask(ctx context.Context, from string, depth int, task CoordinationTask) (out TaskOutcome) {
	start := time.Now()
	out = TaskOutcome{AgentID: task.AgentID, Task: task.Task}
	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Error = fmt.Sprintf("agent panicked: %v", r)
		}
		out.DurationMs = time.Since(start).Milliseconds()
	}()

	agent, err := b.registry.Get(task.AgentID)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	resp, err := agent.Run(ctx, domain.ConversationContext{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: task.Task, Timestamp: time.Now()}},
		Metadata: map[string]string{
			MetaCoordinatedBy:   from,
			MetaDelegationDepth: strconv.Itoa(depth),
		},
	})
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Success = true
	out.Response = resp.Content
	return out
}

func (b *Broker) recordDelegation(outcome string) {
	if b.metrics != nil {
		b.metrics.Delegation(outcome)
	}
}

func (b *Broker) publish(ctx context.Context, typ domain.EventType, payload any) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(ctx, domain.NewEvent(ctx, typ, payload))
}
