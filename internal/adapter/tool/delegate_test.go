package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
	"conductor/internal/usecase"
	"conductor/internal/usecase/multiagent"
)

// scriptLLM answers according to the id of the agent whose turn it is.
type scriptLLM struct {
	mu    sync.Mutex
	turns map[string][]domain.Message // agent id -> replies in order
	seen  map[string]int

	toolReplies []string
}

func (s *scriptLLM) Name() string { return "script" }

func (s *scriptLLM) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last := req.Messages[len(req.Messages)-1]; last.Role == domain.RoleTool {
		s.toolReplies = append(s.toolReplies, last.Content)
	}
	id := domain.AgentIDFromContext(ctx)
	replies := s.turns[id]
	i := s.seen[id]
	s.seen[id]++
	if i >= len(replies) {
		return &domain.ChatResponse{Model: req.Model, Message: domain.Message{Content: "done"}}, nil
	}
	return &domain.ChatResponse{
		Model:   req.Model,
		Message: replies[i],
		Usage:   domain.Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
	}, nil
}

func call(id, name, args string) domain.Message {
	return domain.Message{ToolCalls: []domain.ToolCall{{ID: id, Name: name, Arguments: json.RawMessage(args)}}}
}

func text(s string) domain.Message { return domain.Message{Content: s} }

type fixture struct {
	tools  *Registry
	agents *multiagent.Registry
	broker *multiagent.Broker
}

func newFixture(t *testing.T, llm domain.LLMProvider, cfgs ...domain.AgentConfig) *fixture {
	t.Helper()
	tools := NewRegistry(testLogger(), nil)
	agents := multiagent.NewRegistry(cfgs[0].ID, testLogger())
	broker := multiagent.NewBroker(agents, nil, nil, nil, testLogger(), multiagent.BrokerOptions{})

	tools.RegisterAll(
		NewCalculatorTool(testLogger()),
		NewDelegateTool(broker, testLogger()),
		NewCoordinateTool(broker, testLogger()),
	)
	for _, cfg := range cfgs {
		cfg.Strategy = domain.StrategyFixed
		cfg.Model = "gpt-4o-mini"
		require.NoError(t, agents.Register(usecase.NewAgent(usecase.AgentDeps{
			Config: cfg,
			LLM:    llm,
			Tools:  tools,
			Logger: testLogger(),
		})))
	}
	return &fixture{tools: tools, agents: agents, broker: broker}
}

func orchestration(id string) domain.AgentConfig {
	return domain.AgentConfig{
		ID:    id,
		Name:  id,
		Role:  domain.AgentRoleOrchestrator,
		Tools: []string{"calculator", "delegate_to_agent", "coordinate_agents"},
	}
}

func userTurn(content string) domain.ConversationContext {
	return domain.ConversationContext{Messages: []domain.Message{{Role: domain.RoleUser, Content: content}}}
}

func TestDelegateToolRunsTargetAgent(t *testing.T) {
	llm := &scriptLLM{seen: map[string]int{}, turns: map[string][]domain.Message{
		"orchestrator": {
			call("c1", "delegate_to_agent", `{"agent_id":"math","task":"What is 15 times 37?"}`),
			text("The answer is 555."),
		},
		"math": {
			call("m1", "calculator", `{"operation":"multiply","a":15,"b":37}`),
			text("555"),
		},
	}}
	f := newFixture(t, llm, orchestration("orchestrator"), orchestration("math"))

	orch, err := f.agents.Get("orchestrator")
	require.NoError(t, err)
	resp, err := orch.Run(context.Background(), userTurn("Ask the math agent for 15*37"))
	require.NoError(t, err)

	assert.Equal(t, "The answer is 555.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	rec := resp.ToolCalls[0]
	require.True(t, rec.Result.Success, rec.Result.Error)

	var out multiagent.DelegateResult
	require.NoError(t, json.Unmarshal(rec.Result.Result, &out))
	assert.Equal(t, "math", out.AgentID)
	assert.Equal(t, "555", out.Response)
	assert.Equal(t, []string{"calculator"}, out.ToolsUsed)
	assert.Equal(t, 0, f.broker.Active().Len())
}

func TestDelegateToolCycleBecomesToolFailure(t *testing.T) {
	const task = "Summarise the quarterly numbers"
	args := `{"agent_id":"%s","task":"` + task + `"}`
	llm := &scriptLLM{seen: map[string]int{}, turns: map[string][]domain.Message{
		// a delegates to b, b back to a, and a tries b again with the same task.
		"a": {
			call("a1", "delegate_to_agent", fmt.Sprintf(args, "b")),
			call("a2", "delegate_to_agent", fmt.Sprintf(args, "b")),
			text("a gives up"),
			text("a final"),
		},
		"b": {
			call("b1", "delegate_to_agent", fmt.Sprintf(args, "a")),
			text("b final"),
		},
	}}
	f := newFixture(t, llm, orchestration("a"), orchestration("b"))

	a, err := f.agents.Get("a")
	require.NoError(t, err)
	resp, err := a.Run(context.Background(), userTurn("start"))
	require.NoError(t, err)
	assert.Equal(t, "a final", resp.Content)

	// The inner turn of a received the cycle as an ordinary tool failure.
	var sawCycle bool
	for _, reply := range llm.toolReplies {
		if strings.Contains(reply, `"success":false`) && strings.Contains(reply, "circular delegation detected") {
			sawCycle = true
		}
	}
	assert.True(t, sawCycle, "expected a circular delegation failure, got %v", llm.toolReplies)
	assert.Equal(t, 2, llm.seen["b"])
	assert.Equal(t, 0, f.broker.Active().Len())
}

func TestDelegateToolUnknownAgent(t *testing.T) {
	f := newFixture(t, &scriptLLM{seen: map[string]int{}}, orchestration("orchestrator"))
	tl, ok := f.tools.Get("delegate_to_agent")
	require.True(t, ok)
	assert.Contains(t, tl.Schema().Description, "Available agents: orchestrator")

	res := f.tools.Execute(context.Background(), "delegate_to_agent", json.RawMessage(`{"agent_id":"ghost","task":"x"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "agent not found")
	assert.Contains(t, res.Error, "available: orchestrator")
	assert.False(t, res.IsRetryable)
}

func TestDelegateToolRequiresFields(t *testing.T) {
	f := newFixture(t, &scriptLLM{seen: map[string]int{}}, orchestration("orchestrator"))
	res := f.tools.Execute(context.Background(), "delegate_to_agent", json.RawMessage(`{"agent_id":"orchestrator"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "task")
}

func TestCoordinateToolAggregates(t *testing.T) {
	llm := &scriptLLM{seen: map[string]int{}, turns: map[string][]domain.Message{
		"r1": {text("first findings")},
	}}
	f := newFixture(t, llm, orchestration("r1"))

	res := f.tools.Execute(context.Background(), "coordinate_agents", json.RawMessage(`{
		"tasks": [
			{"agent_id": "r1", "task": "look into A"},
			{"agent_id": "missing", "task": "look into B"}
		]
	}`))
	require.True(t, res.Success, res.Error)

	var out multiagent.CoordinateResult
	require.NoError(t, json.Unmarshal(res.Result, &out))
	assert.Equal(t, 2, out.Summary.Total)
	assert.Equal(t, 1, out.Summary.Successful)
	assert.Equal(t, 1, out.Summary.Failed)
	assert.Equal(t, "first findings", out.Results[0].Response)
	assert.Contains(t, out.Results[1].Error, "agent not found")
}

func TestCoordinateToolLimits(t *testing.T) {
	f := newFixture(t, &scriptLLM{seen: map[string]int{}}, orchestration("r1"))

	res := f.tools.Execute(context.Background(), "coordinate_agents", json.RawMessage(`{"tasks":[]}`))
	assert.False(t, res.Success)

	tool := NewCoordinateTool(f.broker, testLogger())
	many := `{"tasks":[` + repeatJoin(`{"agent_id":"r1","task":"t"}`, 11) + `]}`
	direct, err := tool.Execute(context.Background(), json.RawMessage(many))
	require.NoError(t, err)
	assert.Contains(t, direct.Error, "at most 10 tasks")
}
