package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateAgents(cfg, ve)
	validateLLM(cfg, ve)
	validatePricing(cfg, ve)
	validateTools(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateMetrics(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	a := cfg.Agent
	if a.MaxIterations <= 0 {
		ve.Add("agent.max_iterations must be > 0")
	}
	if a.Timeout < 0 {
		ve.Add("agent.timeout must be >= 0")
	}
	if a.CoordinationTimeout <= 0 {
		ve.Add("agent.coordination_timeout must be > 0")
	}
	if a.MaxDelegationDepth <= 0 {
		ve.Add("agent.max_delegation_depth must be > 0")
	}
	if a.CostCeiling != "" {
		if d, err := decimal.NewFromString(a.CostCeiling); err != nil {
			ve.Add("agent.cost_ceiling %q is not a decimal number", a.CostCeiling)
		} else if d.IsNegative() {
			ve.Add("agent.cost_ceiling must be >= 0")
		}
	}
}

var validRoles = map[string]bool{
	"conversational": true,
	"researcher":     true,
	"orchestrator":   true,
	"automation":     true,
}

var validStrategies = map[string]bool{
	"":               true,
	"auto":           true,
	"fixed":          true,
	"cost-optimized": true,
}

var validComplexities = map[string]bool{
	"simple":   true,
	"moderate": true,
	"complex":  true,
	"critical": true,
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, inst := range cfg.Agents.Instances {
		if inst.ID == "" {
			ve.Add("agents.instances[%d].id must not be empty", i)
			continue
		}
		if seen[inst.ID] {
			ve.Add("agents.instances[%d]: duplicate agent ID %q", i, inst.ID)
		}
		seen[inst.ID] = true

		if inst.Role != "" && !validRoles[inst.Role] {
			ve.Add("agents.instances[%d] (%s): role %q is invalid (want: conversational, researcher, orchestrator, automation)", i, inst.ID, inst.Role)
		}
		if !validStrategies[inst.Strategy] {
			ve.Add("agents.instances[%d] (%s): strategy %q is invalid (want: auto, fixed, cost-optimized)", i, inst.ID, inst.Strategy)
		}
		if inst.Strategy == "fixed" && inst.Model == "" && cfg.Agent.DefaultModel == "" {
			ve.Add("agents.instances[%d] (%s): fixed strategy needs a model or agent.default_model", i, inst.ID)
		}
		if inst.ComplexityHint != "" && !validComplexities[inst.ComplexityHint] {
			ve.Add("agents.instances[%d] (%s): complexity_hint %q is invalid", i, inst.ID, inst.ComplexityHint)
		}
		if inst.Temperature != nil && (*inst.Temperature < 0 || *inst.Temperature > 2) {
			ve.Add("agents.instances[%d] (%s): temperature must be in [0, 2]", i, inst.ID)
		}
		if inst.MaxIter < 0 {
			ve.Add("agents.instances[%d] (%s): max_iter must be >= 0", i, inst.ID)
		}
	}
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		typ := p.Type
		if typ == "" {
			typ = p.Name
		}
		if !validProviderTypes[typ] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, anthropic, bedrock)", i, typ)
		}
		if p.APIKey == "" && typ != "bedrock" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via CONDUCTOR_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, envName(p.Name))
		}
		if typ == "bedrock" && p.Region == "" {
			ve.Add("llm.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
		}
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("llm.providers[%d] (%s): base_url %q is not an absolute URL", i, p.Name, p.BaseURL)
			}
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !seen[fb] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", fb)
			}
		}
	}
	for model, provider := range cfg.LLM.ModelRouting {
		if !seen[provider] {
			ve.Add("llm.model_routing[%s]: unknown provider %q", model, provider)
		}
	}
	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
}

func validatePricing(cfg *Config, ve *ValidationError) {
	for i, p := range cfg.Pricing {
		if p.Model == "" {
			ve.Add("pricing[%d].model must not be empty", i)
			continue
		}
		prices := map[string]string{"input": p.Input, "output": p.Output}
		if p.CachedInput != "" {
			prices["cached_input"] = p.CachedInput
		}
		for field, v := range prices {
			d, err := decimal.NewFromString(v)
			if err != nil {
				ve.Add("pricing[%d] (%s): %s %q is not a decimal number", i, p.Model, field, v)
			} else if d.IsNegative() {
				ve.Add("pricing[%d] (%s): %s must be >= 0", i, p.Model, field)
			}
		}
		for _, c := range p.Complexities {
			if !validComplexities[c] {
				ve.Add("pricing[%d] (%s): complexity %q is invalid", i, p.Model, c)
			}
		}
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	f := cfg.Tools.Fetch
	if f.Enabled {
		if f.MaxBytes < 0 {
			ve.Add("tools.fetch.max_bytes must be >= 0")
		}
		if f.RateLimit < 0 {
			ve.Add("tools.fetch.rate_limit must be >= 0")
		}
		if f.RateLimit > 0 && f.Burst <= 0 {
			ve.Add("tools.fetch.burst must be > 0 when rate_limit is set")
		}
	}

	if s := cfg.Tools.Search; s.URL != "" {
		if u, err := url.Parse(s.URL); err != nil || u.Scheme == "" || u.Host == "" {
			ve.Add("tools.search.url %q is not an absolute URL", s.URL)
		}
		if s.CacheTTL < 0 {
			ve.Add("tools.search.cache_ttl must be >= 0")
		}
	}
	if fs := cfg.Tools.Filesystem; fs.Root != "" && fs.MaxBytes <= 0 {
		ve.Add("tools.filesystem.max_bytes must be > 0")
	}

	seen := make(map[string]bool)
	for i, srv := range cfg.Tools.MCPServers {
		if srv.Name == "" {
			ve.Add("tools.mcp_servers[%d].name must not be empty", i)
			continue
		}
		if seen[srv.Name] {
			ve.Add("tools.mcp_servers[%d]: duplicate server name %q", i, srv.Name)
		}
		seen[srv.Name] = true
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				ve.Add("tools.mcp_servers[%d] (%s): command is required for stdio transport", i, srv.Name)
			}
		case "http":
			if srv.URL == "" {
				ve.Add("tools.mcp_servers[%d] (%s): url is required for http transport", i, srv.Name)
			}
		default:
			ve.Add("tools.mcp_servers[%d] (%s): transport %q is invalid (want: stdio, http)", i, srv.Name, srv.Transport)
		}
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if f := cfg.Logger.Format; f != "" && f != "text" && f != "json" {
		ve.Add("logger.format %q is invalid (want: text, json)", f)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if cfg.Metrics.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q is invalid: %v", cfg.Metrics.Addr, err)
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		ve.Add("metrics.path must start with /")
	}
}
