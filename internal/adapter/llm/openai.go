package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/tracer"
)

// OpenAIProvider implements domain.LLMProvider on the OpenAI Chat Completions
// API. Any OpenAI-compatible endpoint works through base_url.
type OpenAIProvider struct {
	name      string
	model     string
	maxTokens int
	client    openai.Client
	logger    *slog.Logger
}

var _ domain.LLMProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider backed by the official SDK client.
// SDK retries are disabled; the agent loop owns retry policy.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger, opts ...option.RequestOption) *OpenAIProvider {
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
		name = "openai"
	}
	return &OpenAIProvider{
		name:      name,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    openai.NewClient(clientOpts...),
		logger:    logger,
	}
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

// Chat implements domain.LLMProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
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
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = p.mapError(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result, err := fromOpenAIResponse(resp)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result, time.Since(start))
	return result, nil
}

func (p *OpenAIProvider) buildParams(req domain.ChatRequest) (openai.ChatCompletionNewParams, error) {
	messages, err := toOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               req.Model,
		MaxCompletionTokens: openai.Int(effectiveMaxTokens(req.MaxTokens, p.maxTokens)),
	}
	// Reasoning models reject a temperature parameter.
	if !isReasoningModel(req.Model) {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools, err := toOpenAITools(req.Tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func isReasoningModel(model string) bool {
	return len(model) > 1 && model[0] == 'o' && model[1] >= '0' && model[1] <= '9'
}

func toOpenAIMessages(msgs []domain.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case domain.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case domain.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: args,
					},
				}
			}
			if m.Content == "" {
				out = append(out, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Role:      "assistant",
						ToolCalls: calls,
					},
				})
				continue
			}
			msg := openai.AssistantMessage(m.Content)
			msg.OfAssistant.ToolCalls = calls
			out = append(out, msg)
		default:
			return nil, fmt.Errorf("%w: unsupported message role %q", domain.ErrInvalidInput, m.Role)
		}
	}
	return out, nil
}

func toOpenAITools(schemas []domain.ToolSchema) ([]openai.ChatCompletionToolParam, error) {
	tools := make([]openai.ChatCompletionToolParam, len(schemas))
	for i, s := range schemas {
		params, err := schemaMap(s.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w", s.Name, err)
		}
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		}
	}
	return tools, nil
}

// schemaMap decodes a JSON Schema document, defaulting to an empty object schema.
func schemaMap(raw json.RawMessage) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out, nil
}

func fromOpenAIResponse(resp *openai.ChatCompletion) (*domain.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, domain.ErrEmptyResponse
	}
	choice := resp.Choices[0].Message

	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   choice.Content,
		Timestamp: time.Now(),
	}
	for _, tc := range choice.ToolCalls {
		id := tc.ID
		if id == "" {
			id = newCallID()
		}
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return &domain.ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Message: msg,
		Usage: domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}, nil
}

func (p *OpenAIProvider) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", p.name, mapHTTPError(apiErr.StatusCode, apiErr.Message))
	}
	return mapTransportError(p.name, err)
}
