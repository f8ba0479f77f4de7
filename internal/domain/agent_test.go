package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseComplexity(t *testing.T) {
	tests := []struct {
		in      string
		want    Complexity
		wantErr bool
	}{
		{"simple", ComplexitySimple, false},
		{"Moderate", ComplexityModerate, false},
		{" complex ", ComplexityComplex, false},
		{"critical", ComplexityCritical, false},
		{"", 0, false},
		{"extreme", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseComplexity(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComplexityYAML(t *testing.T) {
	var v struct {
		Hint Complexity `yaml:"hint"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("hint: complex\n"), &v))
	assert.Equal(t, ComplexityComplex, v.Hint)
	assert.Equal(t, "complex", v.Hint.String())
	assert.Equal(t, "unset", Complexity(0).String())
}

func TestAgentConfigValidate(t *testing.T) {
	valid := AgentConfig{
		ID:          "researcher",
		Role:        AgentRoleResearcher,
		Strategy:    StrategyAuto,
		Temperature: 0.3,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.ID = ""
	bad.Role = "pilot"
	bad.Temperature = 2.5
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "id is required")
	assert.Contains(t, err.Error(), `unknown role "pilot"`)
	assert.Contains(t, err.Error(), "temperature")

	noStrategy := valid
	noStrategy.Strategy = ""
	assert.Error(t, noStrategy.Validate())
}

func TestConversationContextLastUserMessage(t *testing.T) {
	c := ConversationContext{Messages: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleTool, Content: "{}"},
	}}
	assert.Equal(t, "second", c.LastUserMessage())
	assert.Equal(t, "", ConversationContext{}.LastUserMessage())
}

func TestAgentResponseToolNames(t *testing.T) {
	r := &AgentResponse{ToolCalls: []ToolCallRecord{{Name: "calculator"}, {Name: "get_current_time"}}}
	assert.Equal(t, []string{"calculator", "get_current_time"}, r.ToolNames())
}

func TestUsageAdd(t *testing.T) {
	u := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}.Add(Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 7, TotalTokens: 18}, u)
	assert.True(t, Usage{}.IsZero())
}
