package multiagent

import (
	"log/slog"
	"strings"
)

// PrefixRouter picks the agent for a free-form prompt. A leading "@id" (or
// "@name", case-insensitive) selects that agent and is stripped from the
// prompt; anything else goes to the registry's default agent.
type PrefixRouter struct {
	registry *Registry
	logger   *slog.Logger
}

// NewPrefixRouter creates a router over the given registry.
func NewPrefixRouter(registry *Registry, logger *slog.Logger) *PrefixRouter {
	return &PrefixRouter{registry: registry, logger: logger}
}

// Route returns the target agent id and the prompt with any prefix removed.
func (r *PrefixRouter) Route(input string) (agentID, prompt string) {
	content := strings.TrimSpace(input)
	if !strings.HasPrefix(content, "@") {
		r.logger.Debug("no @prefix, routing to default", "agent_id", r.registry.DefaultID())
		return r.registry.DefaultID(), content
	}

	name, rest, _ := strings.Cut(content[1:], " ")
	if id, ok := r.lookup(name); ok {
		r.logger.Debug("prefix matched agent", "prefix", name, "agent_id", id)
		return id, strings.TrimSpace(rest)
	}
	r.logger.Debug("unknown prefix, routing to default", "prefix", name, "agent_id", r.registry.DefaultID())
	return r.registry.DefaultID(), content
}

func (r *PrefixRouter) lookup(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, cfg := range r.registry.List() {
		if strings.ToLower(cfg.ID) == name || strings.ToLower(cfg.Name) == name {
			return cfg.ID, true
		}
	}
	return "", false
}
