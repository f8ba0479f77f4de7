package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/tracer"
)

// AnthropicProvider implements domain.LLMProvider on the Anthropic Messages API.
type AnthropicProvider struct {
	name      string
	model     string
	maxTokens int
	client    anthropic.Client
	logger    *slog.Logger
}

var _ domain.LLMProvider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider backed by the official SDK client.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger, opts ...option.RequestOption) *AnthropicProvider {
	clientOpts := []option.RequestOption{
		option.WithHTTPClient(NewHTTPClient(cfg)),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	clientOpts = append(clientOpts, opts...)

	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	return &AnthropicProvider{
		name:      name,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    anthropic.NewClient(clientOpts...),
		logger:    logger,
	}
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return p.name }

// Chat implements domain.LLMProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	ctx, span := startChatSpan(ctx, p.name, req.Model)
	defer span.End()

	params, err := p.buildParams(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		err = p.mapError(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromAnthropicMessage(resp)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result, time.Since(start))
	return result, nil
}

func (p *AnthropicProvider) buildParams(req domain.ChatRequest) (anthropic.MessageNewParams, error) {
	system, messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    messages,
		MaxTokens:   effectiveMaxTokens(req.MaxTokens, p.maxTokens),
		Temperature: anthropic.Float(min(req.Temperature, 1)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := toAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

// toAnthropicMessages splits out the system prompt and folds consecutive tool
// results into a single user turn, as the Messages API requires.
func toAnthropicMessages(msgs []domain.Message) (string, []anthropic.MessageParam, error) {
	var (
		system      []string
		out         []anthropic.MessageParam
		toolResults []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(toolResults) > 0 {
			out = append(out, anthropic.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, m := range msgs {
		if m.Role == domain.RoleTool {
			toolResults = append(toolResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isFailureContent(m.Content)))
			continue
		}
		flush()

		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return "", nil, fmt.Errorf("%w: tool call %s arguments: %v", domain.ErrInvalidInput, tc.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			return "", nil, fmt.Errorf("%w: unsupported message role %q", domain.ErrInvalidInput, m.Role)
		}
	}
	flush()
	return strings.Join(system, "\n\n"), out, nil
}

// isFailureContent reports whether a tool message carries a failed ToolResult.
func isFailureContent(content string) bool {
	var probe struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(content), &probe); err != nil || probe.Success == nil {
		return false
	}
	return !*probe.Success
}

func toAnthropicTools(schemas []domain.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	tools := make([]anthropic.ToolUnionParam, len(schemas))
	for i, s := range schemas {
		var schema struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		if len(s.Parameters) > 0 {
			if err := json.Unmarshal(s.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %q schema: %w", s.Name, err)
			}
		}
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}
		tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: schema.Properties,
			Required:   schema.Required,
		}, s.Name)
		tool.OfTool.Description = anthropic.String(s.Description)
		tools[i] = tool
	}
	return tools, nil
}

func fromAnthropicMessage(resp *anthropic.Message) *domain.ChatResponse {
	now := time.Now()
	msg := domain.Message{Role: domain.RoleAssistant, Timestamp: now}

	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if t := block.AsText().Text; t != "" {
				text = append(text, t)
			}
		case "tool_use":
			tu := block.AsToolUse()
			id := tu.ID
			if id == "" {
				id = newCallID()
			}
			args := json.RawMessage(tu.Input)
			if len(args) == 0 || string(args) == "null" {
				args = json.RawMessage("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{ID: id, Name: tu.Name, Arguments: args})
		}
	}
	msg.Content = strings.Join(text, "\n")

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &domain.ChatResponse{
		ID:        resp.ID,
		Model:     string(resp.Model),
		Message:   msg,
		Usage:     domain.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		CreatedAt: now,
	}
}

func (p *AnthropicProvider) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", p.name, mapHTTPError(apiErr.StatusCode, apiErr.RawJSON()))
	}
	return mapTransportError(p.name, err)
}
