package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"conductor/internal/domain"
)

// Runner is an agent the broker can hand a turn to. *usecase.Agent satisfies it.
type Runner interface {
	ID() string
	Config() domain.AgentConfig
	Run(ctx context.Context, conv domain.ConversationContext) (*domain.AgentResponse, error)
}

// Registry holds the agents available for direct use, delegation and coordination.
// It is safe for concurrent use; registration is last-writer-wins.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]Runner
	defaultID string
	logger    *slog.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(defaultID string, logger *slog.Logger) *Registry {
	return &Registry{
		agents:    make(map[string]Runner),
		defaultID: defaultID,
		logger:    logger,
	}
}

// Register adds an agent. An agent with the same id is replaced.
func (r *Registry) Register(agent Runner) error {
	if agent == nil || agent.ID() == "" {
		return fmt.Errorf("%w: agent id must not be empty", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	_, replaced := r.agents[agent.ID()]
	r.agents[agent.ID()] = agent
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("agent replaced", "agent_id", agent.ID())
	} else {
		r.logger.Debug("agent registered", "agent_id", agent.ID(), "role", agent.Config().Role)
	}
	return nil
}

// Get returns the agent with the given id. The error lists the registered ids.
func (r *Registry) Get(id string) (Runner, error) {
	r.mu.RLock()
	agent, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", domain.ErrAgentNotFound, id, strings.Join(r.IDs(), ", "))
	}
	return agent, nil
}

// Default returns the configured default agent.
func (r *Registry) Default() (Runner, error) {
	return r.Get(r.defaultID)
}

// DefaultID returns the id of the default agent.
func (r *Registry) DefaultID() string { return r.defaultID }

// IDs returns the registered agent ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// List returns the configurations of all registered agents, sorted by id.
func (r *Registry) List() []domain.AgentConfig {
	r.mu.RLock()
	out := make([]domain.AgentConfig, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Config())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
