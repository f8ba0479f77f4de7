package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventLLMCallStarted        EventType = "llm.call.started"
	EventLLMCallCompleted      EventType = "llm.call.completed"
	EventToolCallStarted       EventType = "tool.call.started"
	EventToolCallCompleted     EventType = "tool.call.completed"
	EventModelSelected         EventType = "agent.model.selected"
	EventAgentCompleted        EventType = "agent.completed"
	EventAgentError            EventType = "agent.error"
	EventAgentDelegated        EventType = "agent.delegated"
	EventCoordinationCompleted EventType = "coordination.completed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type           EventType       `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	ConversationID string          `json:"conversation_id,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// NewEvent stamps an event and marshals its payload. A payload that fails to
// marshal is dropped.
func NewEvent(ctx context.Context, typ EventType, payload any) Event {
	ev := Event{
		Type:           typ,
		Timestamp:      time.Now(),
		ConversationID: ConversationIDFromContext(ctx),
		AgentID:        AgentIDFromContext(ctx),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
