package llm

import (
	"context"
	"fmt"
	"log/slog"

	"conductor/internal/domain"
)

// ModelRouter is a domain.LLMProvider that dispatches each request to the
// provider serving req.Model. Models without a route go to the fallback.
type ModelRouter struct {
	routes   map[string]string // model → provider name
	registry *Registry
	fallback string
	logger   *slog.Logger
}

var _ domain.LLMProvider = (*ModelRouter)(nil)

// NewModelRouter creates a router. routes maps model IDs to provider names
// registered in registry; fallback names the provider for everything else.
func NewModelRouter(routes map[string]string, registry *Registry, fallback string, logger *slog.Logger) *ModelRouter {
	copied := make(map[string]string, len(routes))
	for model, provider := range routes {
		copied[model] = provider
	}
	return &ModelRouter{
		routes:   copied,
		registry: registry,
		fallback: fallback,
		logger:   logger,
	}
}

// Name implements domain.LLMProvider.
func (r *ModelRouter) Name() string { return "router" }

// Route resolves the provider for model.
func (r *ModelRouter) Route(model string) (domain.LLMProvider, error) {
	name, ok := r.routes[model]
	if !ok || name == "" || name == "default" {
		name = r.fallback
	}
	if name == "" {
		return nil, fmt.Errorf("model %q: %w", model, domain.ErrProviderNotFound)
	}
	provider, err := r.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", model, err)
	}
	return provider, nil
}

// Chat implements domain.LLMProvider.
func (r *ModelRouter) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	provider, err := r.Route(req.Model)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("routing chat request", "model", req.Model, "provider", provider.Name())
	return provider.Chat(ctx, req)
}
