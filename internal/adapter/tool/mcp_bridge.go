package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
)

// defaultMCPCallTimeout bounds a single MCP tool call.
const defaultMCPCallTimeout = 30 * time.Second

// mcpClient is the part of the MCP client the bridge uses.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type mcpServerConn struct {
	name    string
	client  mcpClient
	timeout time.Duration
}

// MCPBridge exposes the tools of external MCP servers as domain tools named
// mcp_<server>_<tool>.
type MCPBridge struct {
	servers []mcpServerConn
	tools   []domain.Tool
	logger  *slog.Logger
}

// NewMCPBridge connects to every configured server and discovers its tools.
// A server that fails to connect aborts the bridge; a server whose tool
// listing fails is skipped unless all of them fail.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	conns := make([]mcpServerConn, 0, len(servers))
	for _, srv := range servers {
		c, err := connectMCP(ctx, srv)
		if err != nil {
			for _, done := range conns {
				_ = done.client.Close()
			}
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		logger.Info("mcp server connected", "server", srv.Name, "transport", srv.Transport)
		conns = append(conns, mcpServerConn{name: srv.Name, client: c, timeout: srv.Timeout})
	}
	return newMCPBridge(ctx, conns, logger)
}

func newMCPBridge(ctx context.Context, conns []mcpServerConn, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{servers: conns, logger: logger}
	if err := b.discover(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func connectMCP(ctx context.Context, srv config.MCPServer) (mcpClient, error) {
	var c *mcpclient.Client
	switch srv.Transport {
	case "stdio":
		sc, err := mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("start stdio client: %w", err)
		}
		c = sc
	case "http":
		t, err := transport.NewStreamableHTTP(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c = mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", domain.ErrInvalidInput, srv.Transport)
	}

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "conductor", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, init); err != nil {
		_ = c.Close()
		return nil, domain.WrapOp("mcp.initialize", err)
	}
	return c, nil
}

func (b *MCPBridge) discover(ctx context.Context) error {
	var failures []string
	for _, srv := range b.servers {
		res, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp tool discovery failed, skipping server", "server", srv.name, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", srv.name, err))
			continue
		}
		for _, t := range res.Tools {
			b.tools = append(b.tools, newMCPTool(srv, t, b.logger))
		}
		b.logger.Info("mcp tools discovered", "server", srv.name, "count", len(res.Tools))
	}
	if len(failures) > 0 && len(failures) == len(b.servers) {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(failures, "; "))
	}
	return nil
}

// Tools returns the discovered tools.
func (b *MCPBridge) Tools() []domain.Tool { return b.tools }

// Close disconnects from every server.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close failed", "server", srv.name, "error", err)
		}
	}
}

// mcpTool adapts one remote MCP tool.
type mcpTool struct {
	server  string
	client  mcpClient
	remote  mcp.Tool
	name    string
	timeout time.Duration
	logger  *slog.Logger
}

func newMCPTool(srv mcpServerConn, t mcp.Tool, logger *slog.Logger) *mcpTool {
	timeout := srv.timeout
	if timeout <= 0 {
		timeout = defaultMCPCallTimeout
	}
	return &mcpTool{
		server:  srv.name,
		client:  srv.client,
		remote:  t,
		name:    MCPToolName(srv.name, t.Name),
		timeout: timeout,
		logger:  logger,
	}
}

// MCPToolName builds the local name of a remote tool.
func MCPToolName(server, tool string) string {
	return "mcp_" + sanitizeName(server) + "_" + sanitizeName(tool)
}

func (t *mcpTool) Name() string { return t.name }

func (t *mcpTool) Description() string {
	if t.remote.Description != "" {
		return t.remote.Description
	}
	return fmt.Sprintf("Tool %q from MCP server %q", t.remote.Name, t.server)
}

func (t *mcpTool) Schema() domain.ToolSchema {
	params := json.RawMessage(`{"type":"object"}`)
	if t.remote.InputSchema.Properties != nil || t.remote.InputSchema.Required != nil {
		if data, err := json.Marshal(t.remote.InputSchema); err == nil {
			params = data
		}
	}
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: params}
}

func (t *mcpTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args map[string]any
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return domain.NewToolFailure(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.remote.Name
	req.Params.Arguments = args

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	t.logger.Debug("mcp tool call", "server", t.server, "tool", t.remote.Name)
	res, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", domain.ErrTimeout, t.timeout)
		}
		failure := domain.NewToolFailure(fmt.Sprintf("mcp server %q: %v", t.server, err))
		failure.IsRetryable = true
		return failure, nil
	}

	text := mcpText(res)
	if res.IsError {
		return domain.NewToolFailure(text), nil
	}
	if json.Valid([]byte(text)) {
		return domain.NewToolSuccess(json.RawMessage(text)), nil
	}
	return domain.NewToolSuccess(text), nil
}

// mcpText flattens the result content. Non-text parts are rendered as JSON.
func mcpText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName keeps [A-Za-z0-9_] and maps everything else to '_'.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
