package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AgentRole is the closed set of roles an agent can play.
type AgentRole string

const (
	AgentRoleConversational AgentRole = "conversational"
	AgentRoleResearcher     AgentRole = "researcher"
	AgentRoleOrchestrator   AgentRole = "orchestrator"
	AgentRoleAutomation     AgentRole = "automation"
)

// Valid reports whether r is one of the known roles.
func (r AgentRole) Valid() bool {
	switch r {
	case AgentRoleConversational, AgentRoleResearcher, AgentRoleOrchestrator, AgentRoleAutomation:
		return true
	}
	return false
}

// SelectionStrategy controls how an agent picks its model.
type SelectionStrategy string

const (
	StrategyAuto          SelectionStrategy = "auto"
	StrategyFixed         SelectionStrategy = "fixed"
	StrategyCostOptimized SelectionStrategy = "cost-optimized"
)

// Valid reports whether s is one of the known strategies.
func (s SelectionStrategy) Valid() bool {
	switch s {
	case StrategyAuto, StrategyFixed, StrategyCostOptimized:
		return true
	}
	return false
}

// Complexity grades how demanding a request is. The zero value means "unset".
type Complexity int

const (
	ComplexitySimple Complexity = iota + 1
	ComplexityModerate
	ComplexityComplex
	ComplexityCritical
)

var complexityNames = map[Complexity]string{
	ComplexitySimple:   "simple",
	ComplexityModerate: "moderate",
	ComplexityComplex:  "complex",
	ComplexityCritical: "critical",
}

func (c Complexity) String() string {
	if s, ok := complexityNames[c]; ok {
		return s
	}
	return "unset"
}

// Valid reports whether c is one of the four levels.
func (c Complexity) Valid() bool {
	return c >= ComplexitySimple && c <= ComplexityCritical
}

// ParseComplexity converts a level name. The empty string yields the zero value.
func ParseComplexity(s string) (Complexity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	for c, name := range complexityNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: complexity %q", ErrInvalidInput, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Complexity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Complexity) UnmarshalText(b []byte) error {
	v, err := ParseComplexity(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// AgentConfig is the static configuration of an agent. Agents carry no
// per-conversation state beyond this.
type AgentConfig struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Role           AgentRole         `json:"role"`
	SystemPrompt   string            `json:"system_prompt"`
	Tools          []string          `json:"tools,omitempty"`
	Model          string            `json:"model,omitempty"`
	ComplexityHint Complexity        `json:"complexity_hint,omitempty"`
	Strategy       SelectionStrategy `json:"strategy"`
	Temperature    float64           `json:"temperature"`
	MaxIterations  int               `json:"max_iterations,omitempty"`
}

// Validate checks the invariants of an agent configuration.
func (c AgentConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ID) == "" {
		problems = append(problems, "id is required")
	}
	if !c.Role.Valid() {
		problems = append(problems, fmt.Sprintf("unknown role %q", c.Role))
	}
	if !c.Strategy.Valid() {
		problems = append(problems, fmt.Sprintf("unknown strategy %q", c.Strategy))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("temperature %.2f outside [0, 2]", c.Temperature))
	}
	if c.ComplexityHint != 0 && !c.ComplexityHint.Valid() {
		problems = append(problems, "invalid complexity hint")
	}
	if c.MaxIterations < 0 {
		problems = append(problems, "max_iterations must be >= 0")
	}
	if len(problems) > 0 {
		return NewDomainError("AgentConfig.Validate", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// ConversationContext is the input to one agent turn. It is owned by a single
// loop invocation.
type ConversationContext struct {
	ID       string            `json:"id,omitempty"`
	Messages []Message         `json:"messages"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LastUserMessage returns the content of the most recent user message.
func (c ConversationContext) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// ToolCallRecord logs one tool invocation made during a turn.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    *ToolResult     `json:"result"`
	Duration  time.Duration   `json:"duration"`
}

// AgentResponse is the terminal output of one agent turn.
type AgentResponse struct {
	AgentID    string           `json:"agent_id"`
	Content    string           `json:"content"`
	Model      string           `json:"model"`
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`
	Usage      *Usage           `json:"usage,omitempty"`
	Cost       *CostInfo        `json:"cost,omitempty"`
	Iterations int              `json:"iterations"`
}

// ToolNames lists the names of the tools used, in call order.
func (r *AgentResponse) ToolNames() []string {
	names := make([]string, 0, len(r.ToolCalls))
	for _, tc := range r.ToolCalls {
		names = append(names, tc.Name)
	}
	return names
}
