package domain

import "context"

type ctxKey string

const (
	conversationCtxKey ctxKey = "conversation_id"
	depthCtxKey        ctxKey = "delegation_depth"
	agentCtxKey        ctxKey = "agent_id"
)

// ContextWithConversationID returns a new context carrying the conversation ID (ULID).
func ContextWithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationCtxKey, id)
}

// ConversationIDFromContext extracts the conversation ID. Returns "" if not set.
func ConversationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(conversationCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithAgentID records which agent is running the current turn.
func ContextWithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentCtxKey, agentID)
}

// AgentIDFromContext returns the agent running the current turn, or "".
func AgentIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(agentCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithDelegationDepth sets how many delegations deep the current turn is.
func ContextWithDelegationDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthCtxKey, depth)
}

// DelegationDepthFromContext returns the delegation depth (0 for a top-level turn).
func DelegationDepthFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(depthCtxKey).(int); ok {
		return v
	}
	return 0
}
