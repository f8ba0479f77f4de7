package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Agent    AgentConfig     `yaml:"agent"`
	Agents   AgentsConfig    `yaml:"agents"`
	LLM      LLMConfig       `yaml:"llm"`
	Pricing  []PricingConfig `yaml:"pricing,omitempty"`
	Tools    ToolsConfig     `yaml:"tools"`
	Logger   LoggerConfig    `yaml:"logger"`
	Tracer   TracerConfig    `yaml:"tracer"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Includes []string        `yaml:"includes,omitempty"`
}

// AgentConfig holds settings shared by every agent instance.
type AgentConfig struct {
	MaxIterations       int           `yaml:"max_iterations"`
	Timeout             time.Duration `yaml:"timeout"`
	DefaultModel        string        `yaml:"default_model"`
	CostCeiling         string        `yaml:"cost_ceiling"` // USD, decimal string
	CoordinationTimeout time.Duration `yaml:"coordination_timeout"`
	MaxDelegationDepth  int           `yaml:"max_delegation_depth"`
}

// AgentsConfig lists agent instances. Entries add to or replace the built-in agents by ID.
type AgentsConfig struct {
	Default   string                `yaml:"default"`
	Instances []AgentInstanceConfig `yaml:"instances,omitempty"`
}

// AgentInstanceConfig defines a single agent instance.
type AgentInstanceConfig struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description,omitempty"`
	Role           string   `yaml:"role"`
	SystemPrompt   string   `yaml:"system_prompt"`
	Tools          []string `yaml:"tools,omitempty"`
	Categories     []string `yaml:"categories,omitempty"`
	Model          string   `yaml:"model,omitempty"`
	Strategy       string   `yaml:"strategy,omitempty"`
	ComplexityHint string   `yaml:"complexity_hint,omitempty"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	MaxIter        int      `yaml:"max_iter,omitempty"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	ModelRouting    map[string]string    `yaml:"model_routing,omitempty"` // model id → provider name
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // openai, anthropic, bedrock
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PricingConfig overrides or extends one row of the model pricing catalog.
// Prices are USD per one million tokens, written as decimal strings.
type PricingConfig struct {
	Model        string   `yaml:"model"`
	Provider     string   `yaml:"provider"`
	Input        string   `yaml:"input"`
	Output       string   `yaml:"output"`
	CachedInput  string   `yaml:"cached_input,omitempty"`
	Complexities []string `yaml:"complexities"`
}

// ToolsConfig holds built-in tool and tool supplier settings.
type ToolsConfig struct {
	Fetch      FetchConfig      `yaml:"fetch"`
	Search     SearchConfig     `yaml:"search"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	MCPServers []MCPServer      `yaml:"mcp_servers,omitempty"`
}

// FetchConfig configures the fetch_url tool.
type FetchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int           `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent,omitempty"`
	RateLimit float64       `yaml:"rate_limit"` // requests per minute, 0 = unlimited
	Burst     int           `yaml:"burst"`
	// AllowPrivate lets fetch_url reach loopback and private network addresses.
	AllowPrivate bool `yaml:"allow_private"`
}

// SearchConfig configures web_search. The tool is registered only when URL is set.
type SearchConfig struct {
	URL      string        `yaml:"url,omitempty"` // SearXNG instance
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// FilesystemConfig confines read_file, write_file and list_directory to Root.
// The tools are registered only when Root is set.
type FilesystemConfig struct {
	Root     string `yaml:"root,omitempty"`
	MaxBytes int    `yaml:"max_bytes"`
	ReadOnly bool   `yaml:"read_only"`
}

// KnowledgeConfig lists directories of markdown documents for search_knowledge_base.
type KnowledgeConfig struct {
	Dirs []string `yaml:"dirs,omitempty"`
}

// MCPServer configures an MCP server connection.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// MetricsConfig holds Prometheus settings. An empty Addr disables the HTTP endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxIterations:       10,
			Timeout:             5 * time.Minute,
			CostCeiling:         "0.02",
			CoordinationTimeout: 60 * time.Second,
			MaxDelegationDepth:  5,
		},
		Agents: AgentsConfig{
			Default: "assistant",
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Tools: ToolsConfig{
			Fetch: FetchConfig{
				Enabled:   true,
				Timeout:   15 * time.Second,
				MaxBytes:  64 * 1024,
				RateLimit: 30,
				Burst:     5,
			},
			Search: SearchConfig{
				CacheTTL: 15 * time.Minute,
				Timeout:  15 * time.Second,
			},
			Filesystem: FilesystemConfig{
				MaxBytes: 256 * 1024,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass collects the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass so the main file takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("CONDUCTOR_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CONDUCTOR_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONDUCTOR_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("CONDUCTOR_LLM_FAILOVER_FALLBACKS"); v != "" {
		cfg.LLM.Failover.Enabled = true
		cfg.LLM.Failover.Fallbacks = splitAndTrim(v, ",")
	}
	if v := os.Getenv("CONDUCTOR_LLM_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.LLM.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("CONDUCTOR_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CONDUCTOR_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CONDUCTOR_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CONDUCTOR_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CONDUCTOR_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("CONDUCTOR_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("CONDUCTOR_AGENT_DEFAULT_MODEL"); v != "" {
		cfg.Agent.DefaultModel = v
	}
	if v := os.Getenv("CONDUCTOR_AGENT_COST_CEILING"); v != "" {
		cfg.Agent.CostCeiling = v
	}
	if v := os.Getenv("CONDUCTOR_COORDINATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Agent.CoordinationTimeout = d
		}
	}
	if v := os.Getenv("CONDUCTOR_AGENT_MAX_DELEGATION_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxDelegationDepth = n
		}
	}
	if v := os.Getenv("CONDUCTOR_TOOLS_KNOWLEDGE_DIRS"); v != "" {
		cfg.Tools.Knowledge.Dirs = splitAndTrim(v, ",")
	}
	if v := os.Getenv("CONDUCTOR_TOOLS_SEARCH_URL"); v != "" {
		cfg.Tools.Search.URL = v
	}
	if v := os.Getenv("CONDUCTOR_TOOLS_FILESYSTEM_ROOT"); v != "" {
		cfg.Tools.Filesystem.Root = v
	}
	if v := os.Getenv("CONDUCTOR_TOOLS_FETCH_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Tools.Fetch.RateLimit = f
		}
	}

	// Per-provider API key overrides: CONDUCTOR_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("CONDUCTOR_LLM_PROVIDER_%s_API_KEY", envName(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// envName upper-cases a provider name and replaces characters not allowed in env var names.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
}

// splitAndTrim splits s by sep, trims whitespace and drops empty elements.
func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		if err := decryptField(&cfg.LLM.Providers[i].APIKey, passphrase); err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
		}
	}
	for i := range cfg.Tools.MCPServers {
		srv := &cfg.Tools.MCPServers[i]
		for k, v := range srv.Env {
			if err := decryptField(&v, passphrase); err != nil {
				return fmt.Errorf("mcp server %s env %s: %w", srv.Name, k, err)
			}
			srv.Env[k] = v
		}
	}
	return nil
}

func decryptField(field *string, passphrase string) error {
	if !strings.HasPrefix(*field, "enc:") {
		return nil
	}
	decrypted, err := DecryptValue(strings.TrimPrefix(*field, "enc:"), passphrase)
	if err != nil {
		return err
	}
	*field = decrypted
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Group or other write bits are never allowed.
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (must not be group or world writable)", path, mode)
	}
	return nil
}
