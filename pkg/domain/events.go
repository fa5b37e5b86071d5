package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter    EventType = "node_enter"
	EventResponse     EventType = "response"
	EventInjection    EventType = "injection"
	EventTerminate    EventType = "terminate"
	EventContentError EventType = "content_error"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
}

// NodeEvent is emitted when a question node is displayed.
type NodeEvent struct {
	EventBase
	NodeID        string `json:"node_id"`
	SequenceIndex *int   `json:"sequence_index,omitempty"`
}

// ResponseEvent is emitted when the visitor answers.
type ResponseEvent struct {
	EventBase
	NodeID         string `json:"node_id"`
	Key            string `json:"key,omitempty"`
	Intent         Intent `json:"intent,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

// InjectionEvent is emitted when review cards are added to the transcript.
type InjectionEvent struct {
	EventBase
	ContextKey string `json:"context_key"`
	Count      int    `json:"count"`
}

// TerminateEvent is emitted once when a conversation ends.
type TerminateEvent struct {
	EventBase
	Status      SessionStatus `json:"status"`
	RedirectURL string        `json:"redirect_url,omitempty"`
}

// ContentErrorEvent is emitted when a content call fails.
type ContentErrorEvent struct {
	EventBase
	Op   string           `json:"op"`
	Kind ContentErrorKind `json:"kind"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter    func(context.Context, *NodeEvent)
	OnResponse     func(context.Context, *ResponseEvent)
	OnInjection    func(context.Context, *InjectionEvent)
	OnTerminate    func(context.Context, *TerminateEvent)
	OnContentError func(context.Context, *ContentErrorEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:    chain(h.OnNodeEnter, other.OnNodeEnter),
		OnResponse:     chain(h.OnResponse, other.OnResponse),
		OnInjection:    chain(h.OnInjection, other.OnInjection),
		OnTerminate:    chain(h.OnTerminate, other.OnTerminate),
		OnContentError: chain(h.OnContentError, other.OnContentError),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
