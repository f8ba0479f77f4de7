package multiagent

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"conductor/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAgent is a Runner whose turn is scripted by fn.
type fakeAgent struct {
	cfg domain.AgentConfig
	fn  func(ctx context.Context, conv domain.ConversationContext) (*domain.AgentResponse, error)

	mu    sync.Mutex
	convs []domain.ConversationContext
}

func newFakeAgent(id string, fn func(context.Context, domain.ConversationContext) (*domain.AgentResponse, error)) *fakeAgent {
	return &fakeAgent{
		cfg: domain.AgentConfig{ID: id, Name: id + " agent", Role: domain.AgentRoleConversational},
		fn:  fn,
	}
}

// replyAgent answers every task with a fixed reply.
func replyAgent(id, reply string) *fakeAgent {
	return newFakeAgent(id, func(context.Context, domain.ConversationContext) (*domain.AgentResponse, error) {
		return &domain.AgentResponse{
			AgentID:   id,
			Content:   reply,
			ToolCalls: []domain.ToolCallRecord{{Name: "calculator"}},
			Usage:     &domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	})
}

func (f *fakeAgent) ID() string                 { return f.cfg.ID }
func (f *fakeAgent) Config() domain.AgentConfig { return f.cfg }

func (f *fakeAgent) Run(ctx context.Context, conv domain.ConversationContext) (*domain.AgentResponse, error) {
	f.mu.Lock()
	f.convs = append(f.convs, conv)
	f.mu.Unlock()
	return f.fn(domain.ContextWithAgentID(ctx, f.cfg.ID), conv)
}

func (f *fakeAgent) received() []domain.ConversationContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ConversationContext(nil), f.convs...)
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Type
	}
	return out
}

type delegationCounter struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *delegationCounter) ToolExecuted(string, bool, time.Duration) {}
func (c *delegationCounter) LLMUsage(string, domain.Usage)            {}
func (c *delegationCounter) TurnCost(domain.CostInfo)                 {}
func (c *delegationCounter) Delegation(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}

func (c *delegationCounter) count(outcome string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcomes[outcome]
}

func newTestBroker(agents ...Runner) *Broker {
	reg := NewRegistry("assistant", testLogger())
	for _, a := range agents {
		_ = reg.Register(a)
	}
	return NewBroker(reg, NewActiveDelegations(), nil, nil, testLogger(), BrokerOptions{})
}
