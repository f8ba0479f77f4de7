package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateAgent(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"max iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "agent.max_iterations must be > 0"},
		{"negative timeout", func(c *Config) { c.Agent.Timeout = -time.Second }, "agent.timeout must be >= 0"},
		{"coordination timeout", func(c *Config) { c.Agent.CoordinationTimeout = 0 }, "agent.coordination_timeout must be > 0"},
		{"delegation depth", func(c *Config) { c.Agent.MaxDelegationDepth = 0 }, "agent.max_delegation_depth must be > 0"},
		{"ceiling not decimal", func(c *Config) { c.Agent.CostCeiling = "cheap" }, `agent.cost_ceiling "cheap" is not a decimal number`},
		{"negative ceiling", func(c *Config) { c.Agent.CostCeiling = "-1" }, "agent.cost_ceiling must be >= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAgentInstances(t *testing.T) {
	hot := 3.0
	cfg := Defaults()
	cfg.Agents.Instances = []AgentInstanceConfig{
		{ID: ""},
		{ID: "a", Role: "wizard"},
		{ID: "a", Role: "researcher"},
		{ID: "b", Strategy: "yolo"},
		{ID: "c", Strategy: "fixed"},
		{ID: "d", ComplexityHint: "extreme"},
		{ID: "e", Temperature: &hot},
		{ID: "f", MaxIter: -2},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, "agents.instances[0].id must not be empty")
	assertContains(t, msg, `role "wizard" is invalid`)
	assertContains(t, msg, `duplicate agent ID "a"`)
	assertContains(t, msg, `strategy "yolo" is invalid`)
	assertContains(t, msg, "fixed strategy needs a model")
	assertContains(t, msg, `complexity_hint "extreme" is invalid`)
	assertContains(t, msg, "temperature must be in [0, 2]")
	assertContains(t, msg, "max_iter must be >= 0")
}

func TestValidateFixedStrategyWithDefaultModel(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.DefaultModel = "gpt-4o-mini"
	cfg.Agents.Instances = []AgentInstanceConfig{{ID: "x", Role: "automation", Strategy: "fixed"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateLLMDefaultProviderEmpty(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.DefaultProvider = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "llm.default_provider must not be empty")
}

func TestValidateLLMProviders(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.DefaultProvider = "missing"
	cfg.LLM.Providers = []ProviderConfig{
		{Name: ""},
		{Name: "openai", APIKey: "k"},
		{Name: "openai", APIKey: "k"},
		{Name: "gemini", APIKey: "k"},
		{Name: "anthropic"},
		{Name: "aws", Type: "bedrock"},
		{Name: "local", Type: "openai", APIKey: "k", BaseURL: "localhost:8080"},
	}
	cfg.LLM.Failover = FailoverConfig{Enabled: true, Fallbacks: []string{"nowhere"}}
	cfg.LLM.ModelRouting = map[string]string{"gpt-4o": "ghost"}
	cfg.LLM.CircuitBreaker = CircuitBreakerConfig{Enabled: true}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, "llm.providers[0].name must not be empty")
	assertContains(t, msg, `duplicate provider name "openai"`)
	assertContains(t, msg, `llm.providers[3].type "gemini" is invalid`)
	assertContains(t, msg, "CONDUCTOR_LLM_PROVIDER_ANTHROPIC_API_KEY")
	assertContains(t, msg, "region is required for bedrock provider")
	assertContains(t, msg, `base_url "localhost:8080" is not an absolute URL`)
	assertContains(t, msg, `llm.default_provider "missing" does not match any configured provider`)
	assertContains(t, msg, `llm.failover.fallbacks: unknown provider "nowhere"`)
	assertContains(t, msg, `llm.model_routing[gpt-4o]: unknown provider "ghost"`)
	assertContains(t, msg, "llm.circuit_breaker.max_failures must be > 0")
}

func TestValidateBedrockNeedsNoAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.DefaultProvider = "aws"
	cfg.LLM.Providers = []ProviderConfig{{Name: "aws", Type: "bedrock", Region: "us-east-1"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePricing(t *testing.T) {
	cfg := Defaults()
	cfg.Pricing = []PricingConfig{
		{Input: "1", Output: "1"},
		{Model: "m1", Input: "abc", Output: "-1", Complexities: []string{"trivial"}},
		{Model: "m2", Input: "0.5", Output: "1.5", CachedInput: "x"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, "pricing[0].model must not be empty")
	assertContains(t, msg, `pricing[1] (m1): input "abc" is not a decimal number`)
	assertContains(t, msg, "pricing[1] (m1): output must be >= 0")
	assertContains(t, msg, `pricing[1] (m1): complexity "trivial" is invalid`)
	assertContains(t, msg, `pricing[2] (m2): cached_input "x" is not a decimal number`)
}

func TestValidateTools(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.Fetch.RateLimit = 10
	cfg.Tools.Fetch.Burst = 0
	cfg.Tools.Search.URL = "searx.local"
	cfg.Tools.Filesystem = FilesystemConfig{Root: "/srv/work", MaxBytes: 0}
	cfg.Tools.MCPServers = []MCPServer{
		{Name: "fs", Transport: "stdio"},
		{Name: "web", Transport: "http"},
		{Name: "web", Transport: "http", URL: "http://x"},
		{Name: "grpc", Transport: "grpc"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, "tools.fetch.burst must be > 0 when rate_limit is set")
	assertContains(t, msg, `tools.search.url "searx.local" is not an absolute URL`)
	assertContains(t, msg, "tools.filesystem.max_bytes must be > 0")
	assertContains(t, msg, "(fs): command is required for stdio transport")
	assertContains(t, msg, "(web): url is required for http transport")
	assertContains(t, msg, `duplicate server name "web"`)
	assertContains(t, msg, `transport "grpc" is invalid`)
}

func TestValidateLoggerTracerMetrics(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "verbose"
	cfg.Logger.Format = "xml"
	cfg.Tracer.Enabled = true
	cfg.Tracer.Exporter = "jaeger"
	cfg.Metrics.Addr = "no-port"
	cfg.Metrics.Path = "metrics"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, `logger.level "verbose" is invalid`)
	assertContains(t, msg, `logger.format "xml" is invalid`)
	assertContains(t, msg, `tracer.exporter "jaeger" is invalid`)
	assertContains(t, msg, `metrics.addr "no-port" is invalid`)
	assertContains(t, msg, "metrics.path must start with /")
}

func TestValidationErrorAggregates(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Fatal("empty ValidationError should have no errors")
	}
	ve.Add("first %d", 1)
	ve.Add("second")
	if !ve.HasErrors() {
		t.Fatal("expected errors")
	}
	want := "config validation failed:\n  - first 1\n  - second"
	if ve.Error() != want {
		t.Errorf("Error() = %q, want %q", ve.Error(), want)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
