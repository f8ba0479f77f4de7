package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"conductor/internal/domain"
)

type mockBedrockClient struct {
	converseFunc func(ctx context.Context, params *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
}

func (m *mockBedrockClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if m.converseFunc != nil {
		return m.converseFunc(ctx, params)
	}
	return nil, fmt.Errorf("not implemented")
}

func textOutput(text string, in, out int32) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
			},
		},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(in), OutputTokens: aws.Int32(out)},
	}
}

func TestBedrockChat(t *testing.T) {
	var received *bedrockruntime.ConverseInput
	mock := &mockBedrockClient{
		converseFunc: func(_ context.Context, params *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
			received = params
			return textOutput("Hello from Bedrock!", 10, 5), nil
		},
	}

	p := newBedrockProviderWithClient("bedrock-test", "anthropic.claude-3-5-sonnet", 0, mock, newTestLogger())
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are helpful."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "Hello from Bedrock!" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if resp.Model != "anthropic.claude-3-5-sonnet" {
		t.Errorf("Model = %q", resp.Model)
	}
	if aws.ToString(received.ModelId) != "anthropic.claude-3-5-sonnet" {
		t.Errorf("ModelId = %q", aws.ToString(received.ModelId))
	}
	if len(received.System) != 1 || len(received.Messages) != 1 {
		t.Errorf("system=%d messages=%d", len(received.System), len(received.Messages))
	}
	if got := aws.ToInt32(received.InferenceConfig.MaxTokens); got != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", got, defaultMaxTokens)
	}
	if p.Name() != "bedrock-test" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestBedrockChatWithToolUse(t *testing.T) {
	mock := &mockBedrockClient{
		converseFunc: func(_ context.Context, params *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
			if params.ToolConfig == nil || len(params.ToolConfig.Tools) != 1 {
				t.Errorf("tool config not forwarded: %+v", params.ToolConfig)
			}
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role: types.ConversationRoleAssistant,
						Content: []types.ContentBlock{
							&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
								ToolUseId: aws.String("tu-1"),
								Name:      aws.String("calculator"),
								Input:     document.NewLazyDocument(map[string]any{"expression": "6*7"}),
							}},
						},
					},
				},
			}, nil
		},
	}

	p := newBedrockProviderWithClient("bedrock", "m", 0, mock, newTestLogger())
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "6*7?"}},
		Tools:    []domain.ToolSchema{{Name: "calculator", Description: "math", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "tu-1" || tc.Name != "calculator" {
		t.Errorf("tool call = %+v", tc)
	}
	var args map[string]string
	if err := json.Unmarshal(tc.Arguments, &args); err != nil || args["expression"] != "6*7" {
		t.Errorf("arguments = %s (%v)", tc.Arguments, err)
	}
}

func TestMarshalDocument(t *testing.T) {
	if got := string(marshalDocument(nil)); got != "{}" {
		t.Errorf("nil document = %s, want {}", got)
	}
	if got := string(marshalDocument(document.NewLazyDocument(nil))); got != "{}" {
		t.Errorf("null document = %s, want {}", got)
	}
	got := marshalDocument(document.NewLazyDocument(map[string]any{"a": 1.5, "b": []string{"x"}}))
	var v struct {
		A float64  `json:"a"`
		B []string `json:"b"`
	}
	if err := json.Unmarshal(got, &v); err != nil || v.A != 1.5 || len(v.B) != 1 || v.B[0] != "x" {
		t.Errorf("document = %s (%v)", got, err)
	}
}

func TestBedrockToolResultsMerged(t *testing.T) {
	input, err := toBedrockConverseInput(domain.ChatRequest{
		Model: "m",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "go"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
				{ID: "a", Name: "clock"},
				{ID: "b", Name: "fetch", Arguments: json.RawMessage(`{"url":"https://example.com"}`)},
			}},
			{Role: domain.RoleTool, ToolCallID: "a", Content: `{"success":true,"content":"noon"}`},
			{Role: domain.RoleTool, ToolCallID: "b", Content: `{"success":false,"error":"blocked"}`},
		},
	}, 512)
	if err != nil {
		t.Fatalf("toBedrockConverseInput: %v", err)
	}
	if len(input.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(input.Messages))
	}
	results := input.Messages[2]
	if results.Role != types.ConversationRoleUser || len(results.Content) != 2 {
		t.Fatalf("tool results not merged: %+v", results)
	}
	first, ok := results.Content[0].(*types.ContentBlockMemberToolResult)
	if !ok || aws.ToString(first.Value.ToolUseId) != "a" || first.Value.Status != types.ToolResultStatusSuccess {
		t.Errorf("first result = %+v", results.Content[0])
	}
	second := results.Content[1].(*types.ContentBlockMemberToolResult)
	if aws.ToString(second.Value.ToolUseId) != "b" || second.Value.Status != types.ToolResultStatusError {
		t.Errorf("second result = %+v", second.Value)
	}
	if got := aws.ToInt32(input.InferenceConfig.MaxTokens); got != 512 {
		t.Errorf("MaxTokens = %d, want 512", got)
	}
}

func TestBedrockRejectsUnknownRole(t *testing.T) {
	_, err := toBedrockConverseInput(domain.ChatRequest{Messages: []domain.Message{{Role: "narrator"}}}, 0)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBedrockErrorMapping(t *testing.T) {
	tests := []struct {
		code    string
		message string
		want    error
	}{
		{"ThrottlingException", "slow down", domain.ErrRateLimit},
		{"AccessDeniedException", "denied", domain.ErrAuthInvalid},
		{"ServiceUnavailableException", "down", domain.ErrUnavailable},
		{"ModelTimeoutException", "too slow", domain.ErrTimeout},
		{"ValidationException", "input is too long", domain.ErrContextOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			mock := &mockBedrockClient{
				converseFunc: func(context.Context, *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
					return nil, &smithy.GenericAPIError{Code: tt.code, Message: tt.message}
				},
			}
			p := newBedrockProviderWithClient("bedrock", "m", 0, mock, newTestLogger())
			_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "x"}}})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBedrockErrorMappingPassthrough(t *testing.T) {
	err := mapBedrockError("bedrock", &smithy.GenericAPIError{Code: "ValidationException", Message: "bad field"})
	if domain.IsRetryableError(err) {
		t.Errorf("validation error should not be retryable: %v", err)
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		t.Error("original API error should stay in the chain")
	}
}

func TestMarshalDocumentNil(t *testing.T) {
	if got := string(marshalDocument(nil)); got != "{}" {
		t.Errorf("marshalDocument(nil) = %s", got)
	}
}
