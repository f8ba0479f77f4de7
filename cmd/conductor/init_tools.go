package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"conductor/internal/adapter/knowledge"
	"conductor/internal/adapter/tool"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/security"
)

// ToolComponents holds the tool registry and whatever must be closed with it.
type ToolComponents struct {
	Registry *tool.Registry
	closers  []func()
}

// Close releases tool backends in reverse creation order.
func (c *ToolComponents) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// initTools registers the built-in tools and any MCP server tools. The
// delegation tools are added later, once the broker exists.
func initTools(ctx context.Context, cfg *config.Config, metrics domain.MetricsRecorder, log *slog.Logger) (*ToolComponents, error) {
	registry := tool.NewRegistry(log, metrics)
	tc := &ToolComponents{Registry: registry}

	registry.RegisterAll(
		tool.NewCalculatorTool(log),
		tool.NewClockTool(log),
	)

	fc := cfg.Tools.Fetch
	if fc.Enabled {
		var client *http.Client
		if !fc.AllowPrivate {
			client = &http.Client{Timeout: fc.Timeout, Transport: security.NewGuardedTransport(fc.Timeout)}
		}
		registry.Register(rateLimited(tool.NewFetchTool(client, tool.FetchConfig{
			Timeout:   fc.Timeout,
			MaxBytes:  fc.MaxBytes,
			UserAgent: fc.UserAgent,
		}, log), fc))
		log.Info("fetch tool enabled", "timeout", fc.Timeout, "rate_limit", fc.RateLimit, "allow_private", fc.AllowPrivate)
	}

	if sc := cfg.Tools.Search; sc.URL != "" {
		backend := tool.NewSearXNGBackend(sc.URL, sc.Timeout, log)
		registry.Register(rateLimited(tool.NewWebSearchTool(backend, sc.CacheTTL, log), fc))
		log.Info("web search tool enabled", "url", sc.URL)
	}

	if fsc := cfg.Tools.Filesystem; fsc.Root != "" {
		backend, err := tool.NewLocalFilesystemBackend(fsc.Root)
		if err != nil {
			tc.Close()
			return nil, fmt.Errorf("filesystem tools: %w", err)
		}
		tc.closers = append(tc.closers, func() { _ = backend.Close() })
		registry.RegisterAll(tool.NewFilesystemTools(backend, fsc.MaxBytes, fsc.ReadOnly, log)...)
		log.Info("filesystem tools enabled", "root", backend.Root(), "read_only", fsc.ReadOnly)
	}

	if dirs := cfg.Tools.Knowledge.Dirs; len(dirs) > 0 {
		store := knowledge.NewStore(log)
		for _, dir := range dirs {
			n, err := store.LoadDir(dir)
			if err != nil {
				tc.Close()
				return nil, fmt.Errorf("knowledge dir %s: %w", dir, err)
			}
			log.Info("knowledge documents loaded", "dir", dir, "documents", n)
		}
		registry.Register(tool.NewKnowledgeTool(store, log))
	}

	if len(cfg.Tools.MCPServers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, cfg.Tools.MCPServers, log)
		if err != nil {
			tc.Close()
			return nil, err
		}
		tc.closers = append(tc.closers, bridge.Close)
		registry.RegisterAll(bridge.Tools()...)
		log.Info("mcp tools registered", "servers", len(cfg.Tools.MCPServers), "tools", len(bridge.Tools()))
	}

	return tc, nil
}

// rateLimited applies the shared outbound HTTP limit to a tool.
func rateLimited(t domain.Tool, fc config.FetchConfig) domain.Tool {
	if fc.RateLimit <= 0 {
		return t
	}
	return tool.WithRateLimit(t, fc.RateLimit, fc.Burst, tool.DefaultRateLimitWait)
}
