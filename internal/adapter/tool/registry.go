package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

// Registry holds named tools and executes them on behalf of agents.
// Registration is last-writer-wins; Execute never returns an error.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]domain.Tool
	logger  *slog.Logger
	metrics domain.MetricsRecorder
}

// NewRegistry creates an empty tool registry. metrics may be nil.
func NewRegistry(logger *slog.Logger, metrics domain.MetricsRecorder) *Registry {
	return &Registry{
		tools:   make(map[string]domain.Tool),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds a tool, replacing any tool with the same name. Tools whose
// parameter schema compiles are wrapped with schema validation; otherwise
// the tool is registered unwrapped and a warning is logged.
func (r *Registry) Register(t domain.Tool) {
	name := t.Name()
	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
		wrapped = t
	}

	r.mu.Lock()
	_, replaced := r.tools[name]
	r.tools[name] = wrapped
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("tool replaced", "tool", name)
	} else {
		r.logger.Debug("tool registered", "tool", name)
	}
}

// RegisterAll registers each tool in order.
func (r *Registry) RegisterAll(tools ...domain.Tool) {
	for _, t := range tools {
		r.Register(t)
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	r.mu.RUnlock()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// ListByNames returns the registered tools among names, in the order given.
// Unknown names are skipped.
func (r *Registry) ListByNames(names []string) []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tool, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ListByCategory returns the registered tools of a category.
func (r *Registry) ListByCategory(category string) []domain.Tool {
	return r.ListByNames(categoryTools[category])
}

// Categories returns the categories with at least one registered tool.
func (r *Registry) Categories() []string {
	var out []string
	for _, c := range AllCategories() {
		if len(r.ListByCategory(c)) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Schemas returns the function-calling schemas of the named tools.
func (r *Registry) Schemas(names []string) []domain.ToolSchema {
	tools := r.ListByNames(names)
	schemas := make([]domain.ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// Execute runs the named tool. Unknown tools, returned errors and panics all
// come back as failure results.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (res *domain.ToolResult) {
	ctx, span := tracer.StartSpan(ctx, "tool.execute",
		trace.WithAttributes(tracer.StringAttr("tool.name", name)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			res = domain.NewToolFailure(fmt.Sprintf("Tool %q panicked: %v", name, p))
		}
		r.observe(span, name, args, res, time.Since(start))
	}()

	t, ok := r.Get(name)
	if !ok {
		return domain.NewToolFailure(fmt.Sprintf("Tool %q not found", name))
	}

	res, err := t.Execute(ctx, args)
	switch {
	case err != nil:
		res = domain.NewToolFailure(err.Error())
		res.IsRetryable = classifyToolError(err)
	case res == nil:
		res = domain.NewToolFailure(fmt.Sprintf("Tool %q returned no result", name))
	}
	return res
}

func (r *Registry) observe(span trace.Span, name string, args json.RawMessage, res *domain.ToolResult, d time.Duration) {
	r.logger.Info("tool executed",
		"tool", name,
		"args", string(args),
		"duration", d,
		"success", res.Success,
	)
	if res.Success {
		tracer.SetOK(span)
	} else {
		tracer.RecordError(span, fmt.Errorf("%s", res.Error))
	}
	if r.metrics != nil {
		r.metrics.ToolExecuted(name, res.Success, d)
	}
}
