package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/tracer"
)

// bedrockConverseAPI is the slice of the Bedrock runtime client the provider uses.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements domain.LLMProvider via the AWS Bedrock Converse API.
type BedrockProvider struct {
	name      string
	model     string
	maxTokens int
	client    bedrockConverseAPI
	logger    *slog.Logger
}

var _ domain.LLMProvider = (*BedrockProvider)(nil)

// NewBedrockProvider creates a Bedrock provider using the default AWS credential chain.
func NewBedrockProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(NewHTTPClient(cfg)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var opts []func(*bedrockruntime.Options)
	if cfg.BaseURL != "" {
		opts = append(opts, func(o *bedrockruntime.Options) { o.BaseEndpoint = aws.String(cfg.BaseURL) })
	}

	name := cfg.Name
	if name == "" {
		name = "bedrock"
	}
	return newBedrockProviderWithClient(name, cfg.Model, cfg.MaxTokens, bedrockruntime.NewFromConfig(awsCfg, opts...), logger), nil
}

func newBedrockProviderWithClient(name, model string, maxTokens int, client bedrockConverseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{
		name:      name,
		model:     model,
		maxTokens: maxTokens,
		client:    client,
		logger:    logger,
	}
}

// Name implements domain.LLMProvider.
func (p *BedrockProvider) Name() string { return p.name }

// Chat implements domain.LLMProvider.
func (p *BedrockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	ctx, span := startChatSpan(ctx, p.name, req.Model)
	defer span.End()

	input, err := toBedrockConverseInput(req, p.maxTokens)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	output, err := p.client.Converse(ctx, input)
	if err != nil {
		err = mapBedrockError(p.name, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromBedrockConverseOutput(output, req.Model)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result, time.Since(start))
	return result, nil
}

func toBedrockConverseInput(req domain.ChatRequest, cfgMaxTokens int) (*bedrockruntime.ConverseInput, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(effectiveMaxTokens(req.MaxTokens, cfgMaxTokens))),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}

	// Consecutive tool results travel in one user message.
	var pendingResults []types.ContentBlock
	flush := func() {
		if len(pendingResults) > 0 {
			input.Messages = append(input.Messages, types.Message{Role: types.ConversationRoleUser, Content: pendingResults})
			pendingResults = nil
		}
	}

	for _, m := range req.Messages {
		if m.Role == domain.RoleTool {
			status := types.ToolResultStatusSuccess
			if isFailureContent(m.Content) {
				status = types.ToolResultStatusError
			}
			pendingResults = append(pendingResults, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Status:    status,
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: m.Content},
					},
				},
			})
			continue
		}
		flush()

		switch m.Role {
		case domain.RoleSystem:
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case domain.RoleUser:
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		case domain.RoleAssistant:
			msg := types.Message{Role: types.ConversationRoleAssistant}
			if m.Content != "" {
				msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				inputDoc := map[string]any{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &inputDoc); err != nil {
						return nil, fmt.Errorf("%w: tool call %s arguments: %v", domain.ErrInvalidInput, tc.ID, err)
					}
				}
				msg.Content = append(msg.Content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(inputDoc),
				}})
			}
			if len(msg.Content) > 0 {
				input.Messages = append(input.Messages, msg)
			}
		default:
			return nil, fmt.Errorf("%w: unsupported message role %q", domain.ErrInvalidInput, m.Role)
		}
	}
	flush()

	if len(req.Tools) > 0 {
		tc, err := toBedrockToolConfig(req.Tools)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = tc
	}
	return input, nil
}

func toBedrockToolConfig(tools []domain.ToolSchema) (*types.ToolConfiguration, error) {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		schema, err := schemaMap(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}, nil
}

func fromBedrockConverseOutput(output *bedrockruntime.ConverseOutput, model string) *domain.ChatResponse {
	now := time.Now()
	result := &domain.ChatResponse{Model: model, CreatedAt: now}

	if output.Usage != nil {
		in := int(aws.ToInt32(output.Usage.InputTokens))
		out := int(aws.ToInt32(output.Usage.OutputTokens))
		result.Usage = domain.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
	}

	msg := domain.Message{Role: domain.RoleAssistant, Timestamp: now}
	if outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		var text []string
		for _, block := range outMsg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				text = append(text, b.Value)
			case *types.ContentBlockMemberToolUse:
				id := aws.ToString(b.Value.ToolUseId)
				if id == "" {
					id = newCallID()
				}
				msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
					ID:        id,
					Name:      aws.ToString(b.Value.Name),
					Arguments: marshalDocument(b.Value.Input),
				})
			}
		}
		msg.Content = strings.Join(text, "\n")
	}
	result.Message = msg
	return result
}

// marshalDocument converts a Bedrock document to JSON, falling back to an empty object.
func marshalDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return json.RawMessage("{}")
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 || string(data) == "null" {
		return json.RawMessage("{}")
	}
	return data
}

func mapBedrockError(provider string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return mapTransportError(provider, err)
	}

	msg := err.Error()
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
		return fmt.Errorf("%s: %w: %s", provider, domain.ErrRateLimit, msg)
	case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
		return fmt.Errorf("%s: %w: %s", provider, domain.ErrAuthInvalid, msg)
	case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException", "ModelErrorException":
		return fmt.Errorf("%s: %w: %s", provider, domain.ErrUnavailable, msg)
	case "ModelTimeoutException":
		return fmt.Errorf("%s: %w: %s", provider, domain.ErrTimeout, msg)
	case "ValidationException":
		if strings.Contains(msg, "too long") {
			return fmt.Errorf("%s: %w: %s", provider, domain.ErrContextOverflow, msg)
		}
	}
	return fmt.Errorf("%s: %w", provider, err)
}
