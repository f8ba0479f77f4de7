package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"conductor/internal/adapter/tool"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/metrics"
	"conductor/internal/usecase"
	"conductor/internal/usecase/eventbus"
	"conductor/internal/usecase/multiagent"
)

// App is the wired object graph behind every command.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	LLM      *LLMComponents
	Selector *usecase.ModelSelector
	Tools    *ToolComponents
	Agents   *multiagent.Registry
	Broker   *multiagent.Broker
	Router   *multiagent.PrefixRouter
	Bus      *eventbus.Bus
	Metrics  *metrics.Recorder

	unsubscribe func()
}

// buildApp wires providers, tools and agents from cfg.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: log, Metrics: metrics.New()}

	app.Bus = eventbus.New(log)
	app.unsubscribe = eventbus.LogEvents(app.Bus, log)

	llmc, err := initLLM(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.LLM = llmc

	catalog, err := buildCatalog(cfg.Pricing)
	if err != nil {
		app.Close()
		return nil, err
	}
	llmc.routeModels(cfg, catalog, log)
	routable := func(p domain.ModelPricing) bool { return llmc.routable(cfg, p) }
	app.Selector = usecase.NewModelSelector(catalog, modelTable(catalog, routable, log))

	tools, err := initTools(ctx, cfg, app.Metrics, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Tools = tools

	app.Agents = multiagent.NewRegistry(cfg.Agents.Default, log)
	app.Broker = multiagent.NewBroker(app.Agents, nil, app.Bus, app.Metrics, log, multiagent.BrokerOptions{
		MaxDelegationDepth:  cfg.Agent.MaxDelegationDepth,
		CoordinationTimeout: cfg.Agent.CoordinationTimeout,
	})
	tools.Registry.RegisterAll(
		tool.NewDelegateTool(app.Broker, log),
		tool.NewCoordinateTool(app.Broker, log),
	)
	app.Router = multiagent.NewPrefixRouter(app.Agents, log)

	if err := app.registerAgents(); err != nil {
		app.Close()
		return nil, err
	}
	if _, err := app.Agents.Default(); err != nil {
		app.Close()
		return nil, fmt.Errorf("default agent: %w", err)
	}
	return app, nil
}

func (a *App) registerAgents() error {
	configs, err := agentConfigs(a.Config.Agents.Instances, a.Logger)
	if err != nil {
		return err
	}

	ceiling := usecase.DefaultCostCeiling
	if s := a.Config.Agent.CostCeiling; s != "" {
		if ceiling, err = decimal.NewFromString(s); err != nil {
			return fmt.Errorf("agent.cost_ceiling: %w", err)
		}
	}

	classifier := usecase.NewErrorClassifier()
	for _, cfg := range configs {
		agent := usecase.NewAgent(usecase.AgentDeps{
			Config:          cfg,
			LLM:             a.LLM.Router,
			Tools:           usecase.NewScopedToolExecutor(a.Tools.Registry, cfg.Tools),
			Selector:        a.Selector,
			Logger:          a.Logger,
			MaxIterations:   a.Config.Agent.MaxIterations,
			DefaultModel:    a.defaultModel(),
			CostCeiling:     &ceiling,
			Bus:             a.Bus,
			Metrics:         a.Metrics,
			ErrorClassifier: classifier,
		})
		if err := a.Agents.Register(agent); err != nil {
			return err
		}
		a.Logger.Debug("agent registered", "agent_id", cfg.ID, "role", cfg.Role, "tools", len(cfg.Tools))
	}
	return nil
}

// defaultModel is the model for fixed-strategy agents without their own:
// agent.default_model, else the moderate-complexity default.
func (a *App) defaultModel() string {
	if m := a.Config.Agent.DefaultModel; m != "" {
		return m
	}
	return a.Selector.DefaultFor(domain.ComplexityModerate)
}

// Ask routes prompt to an agent and runs one turn. An empty agentID lets a
// leading @mention pick the agent.
func (a *App) Ask(ctx context.Context, agentID, prompt string) (*domain.AgentResponse, error) {
	if agentID == "" {
		agentID, prompt = a.Router.Route(prompt)
	}
	agent, err := a.Agents.Get(agentID)
	if err != nil {
		return nil, err
	}
	if a.Config.Agent.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.Agent.Timeout)
		defer cancel()
	}
	return agent.Run(ctx, domain.ConversationContext{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: prompt}},
	})
}

// Close releases tool backends and drains the event bus.
func (a *App) Close() {
	if a.Tools != nil {
		a.Tools.Close()
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
}
