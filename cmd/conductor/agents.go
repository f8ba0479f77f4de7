package main

import (
	"fmt"
	"log/slog"
	"strings"

	"conductor/internal/adapter/tool"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
)

// agentFactory builds one built-in agent configuration.
type agentFactory func() domain.AgentConfig

var builtinAgents = []agentFactory{
	newAssistantAgent,
	newResearcherAgent,
	newOrchestratorAgent,
	newAutomationAgent,
}

func newAssistantAgent() domain.AgentConfig {
	return domain.AgentConfig{
		ID:          "assistant",
		Name:        "Assistant",
		Description: "General conversation, quick answers and arithmetic",
		Role:        domain.AgentRoleConversational,
		SystemPrompt: "You are a helpful assistant. Answer directly and concisely. " +
			"Use the calculator for arithmetic instead of computing in your head, and " +
			"the clock when the answer depends on the current date or time.",
		Tools:       tool.ExpandCategories(nil, tool.CategoryMath, tool.CategoryTime, tool.CategoryKnowledge),
		Strategy:    domain.StrategyAuto,
		Temperature: 0.7,
	}
}

func newResearcherAgent() domain.AgentConfig {
	return domain.AgentConfig{
		ID:          "researcher",
		Name:        "Researcher",
		Description: "Finds, reads and summarizes sources",
		Role:        domain.AgentRoleResearcher,
		SystemPrompt: "You are a research specialist. Gather information with the available " +
			"search and retrieval tools before answering, cite the sources you used, " +
			"and say plainly when the sources disagree or are missing.",
		Tools:       tool.ExpandCategories(nil, tool.CategoryResearch, tool.CategoryTime),
		Strategy:    domain.StrategyAuto,
		Temperature: 0.3,
	}
}

func newOrchestratorAgent() domain.AgentConfig {
	return domain.AgentConfig{
		ID:          "orchestrator",
		Name:        "Orchestrator",
		Description: "Breaks work into sub-tasks and hands them to other agents",
		Role:        domain.AgentRoleOrchestrator,
		SystemPrompt: "You coordinate a team of agents. Split the request into independent " +
			"sub-tasks, use delegate_to_agent for a single sub-task and coordinate_agents " +
			"to run several at once, then combine their results into one answer. " +
			"Available agents: assistant (general questions, arithmetic), researcher " +
			"(finding and summarizing information), automation (files and repetitive tasks).",
		Tools:       tool.ExpandCategories(nil, tool.CategoryOrchestration, tool.CategoryTime),
		Strategy:    domain.StrategyAuto,
		Temperature: 0.2,
	}
}

func newAutomationAgent() domain.AgentConfig {
	return domain.AgentConfig{
		ID:          "automation",
		Name:        "Automation",
		Description: "Carries out well-defined, repetitive tasks on files and web resources",
		Role:        domain.AgentRoleAutomation,
		SystemPrompt: "You execute well-defined tasks step by step. Use tools for every " +
			"action, check each result before the next step, and report exactly what was done.",
		Tools: tool.ExpandCategories(nil,
			tool.CategoryFilesystem, tool.CategoryWeb, tool.CategoryMath, tool.CategoryTime),
		Strategy:    domain.StrategyCostOptimized,
		Temperature: 0,
	}
}

// agentConfigs returns the built-in agents with the configured instances
// applied on top. An instance whose id matches a built-in overrides the
// fields it sets; any other instance is a new agent.
func agentConfigs(instances []config.AgentInstanceConfig, log *slog.Logger) ([]domain.AgentConfig, error) {
	var (
		out   []domain.AgentConfig
		index = make(map[string]int)
	)
	for _, f := range builtinAgents {
		cfg := f()
		index[cfg.ID] = len(out)
		out = append(out, cfg)
	}

	for _, inst := range instances {
		base := domain.AgentConfig{
			ID:       inst.ID,
			Name:     inst.ID,
			Role:     domain.AgentRoleConversational,
			Strategy: domain.StrategyAuto,
		}
		i, exists := index[inst.ID]
		if exists {
			base = out[i]
			log.Debug("agent overridden by config", "agent_id", inst.ID)
		}
		cfg, err := applyInstance(base, inst)
		if err != nil {
			return nil, err
		}
		if exists {
			out[i] = cfg
		} else {
			index[cfg.ID] = len(out)
			out = append(out, cfg)
		}
	}
	return out, nil
}

func applyInstance(cfg domain.AgentConfig, inst config.AgentInstanceConfig) (domain.AgentConfig, error) {
	if inst.Name != "" {
		cfg.Name = inst.Name
	}
	if inst.Description != "" {
		cfg.Description = inst.Description
	}
	if inst.Role != "" {
		cfg.Role = domain.AgentRole(inst.Role)
	}
	if inst.SystemPrompt != "" {
		cfg.SystemPrompt = inst.SystemPrompt
	}
	if len(inst.Tools) > 0 || len(inst.Categories) > 0 {
		cfg.Tools = tool.ExpandCategories(inst.Tools, inst.Categories...)
	}
	if inst.Model != "" {
		cfg.Model = inst.Model
	}
	if inst.Strategy != "" {
		cfg.Strategy = domain.SelectionStrategy(inst.Strategy)
	}
	if inst.ComplexityHint != "" {
		hint, err := domain.ParseComplexity(inst.ComplexityHint)
		if err != nil {
			return cfg, fmt.Errorf("agent %s: %w", inst.ID, err)
		}
		cfg.ComplexityHint = hint
	}
	if inst.Temperature != nil {
		cfg.Temperature = *inst.Temperature
	}
	if inst.MaxIter > 0 {
		cfg.MaxIterations = inst.MaxIter
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("agent %s: %w", inst.ID, err)
	}
	return cfg, nil
}

// describeTools renders a tool list for the agents table.
func describeTools(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
