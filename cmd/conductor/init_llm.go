package main

import (
	"context"
	"fmt"
	"log/slog"

	"conductor/internal/adapter/llm"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
)

// LLMComponents holds the provider registry and the model router agents call.
type LLMComponents struct {
	Registry *llm.Registry
	Router   *llm.ModelRouter
	// providerByType maps a provider type (openai, anthropic, bedrock) to the
	// first configured provider name of that type.
	providerByType map[string]string
}

// initLLM creates every configured provider, wraps them in circuit breakers
// and failover as configured, and builds the model router.
func initLLM(ctx context.Context, cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	registry := llm.NewRegistry()
	byType := make(map[string]string)

	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(ctx, pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cbCfg, log)
		}
		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
		if _, ok := byType[providerType(pc)]; !ok {
			byType[providerType(pc)] = pc.Name
		}
	}
	if len(cfg.LLM.Providers) == 0 {
		log.Warn("no llm providers configured")
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	if cfg.LLM.Failover.Enabled && len(cfg.LLM.Failover.Fallbacks) > 0 {
		primary, err := registry.Get(cfg.LLM.DefaultProvider)
		if err != nil {
			return nil, fmt.Errorf("default llm provider: %w", err)
		}
		var fallbacks []domain.LLMProvider
		for _, name := range cfg.LLM.Failover.Fallbacks {
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			fallbacks = append(fallbacks, ownModel{fb})
		}
		registry.Replace(cfg.LLM.DefaultProvider, llm.NewFailoverProvider(primary, fallbacks, log))
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
	}

	return &LLMComponents{
		Registry:       registry,
		providerByType: byType,
	}, nil
}

// routeModels builds the model router: catalog providers first, explicit
// model_routing entries on top, the default provider for everything else.
func (c *LLMComponents) routeModels(cfg *config.Config, catalog []domain.ModelPricing, log *slog.Logger) {
	routes := make(map[string]string)
	for _, p := range catalog {
		if name, ok := c.providerByType[p.Provider]; ok {
			routes[p.Model] = name
		} else if _, err := c.Registry.Get(p.Provider); err == nil {
			routes[p.Model] = p.Provider
		}
	}
	for model, provider := range cfg.LLM.ModelRouting {
		routes[model] = provider
	}
	c.Router = llm.NewModelRouter(routes, c.Registry, cfg.LLM.DefaultProvider, log)
}

// routable reports whether a model has a provider other than the fallback.
func (c *LLMComponents) routable(cfg *config.Config, p domain.ModelPricing) bool {
	if _, ok := cfg.LLM.ModelRouting[p.Model]; ok {
		return true
	}
	if _, ok := c.providerByType[p.Provider]; ok {
		return true
	}
	_, err := c.Registry.Get(p.Provider)
	return err == nil
}

// createLLMProvider builds a single provider from its config.
func createLLMProvider(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch providerType(pc) {
	case "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	case "bedrock":
		return llm.NewBedrockProvider(ctx, pc, log)
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

func providerType(pc config.ProviderConfig) string {
	if pc.Type != "" {
		return pc.Type
	}
	return pc.Name
}

// ownModel drops the requested model so a fallback answers with its own
// configured model.
type ownModel struct {
	domain.LLMProvider
}

func (o ownModel) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = ""
	return o.LLMProvider.Chat(ctx, req)
}
