package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/genie/pkg/domain"
)

// LoggingHooks logs every lifecycle event.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"conversation_id", e.ConversationID,
				"node_id", e.NodeID,
			)
		},
		OnResponse: func(ctx context.Context, e *domain.ResponseEvent) {
			logger.InfoContext(ctx, "response",
				"conversation_id", e.ConversationID,
				"node_id", e.NodeID,
				"key", e.Key,
				"intent", e.Intent,
				"response_time_ms", e.ResponseTimeMs,
			)
		},
		OnInjection: func(ctx context.Context, e *domain.InjectionEvent) {
			logger.DebugContext(ctx, "review_injection",
				"conversation_id", e.ConversationID,
				"context_key", e.ContextKey,
				"count", e.Count,
			)
		},
		OnTerminate: func(ctx context.Context, e *domain.TerminateEvent) {
			logger.InfoContext(ctx, "terminate",
				"conversation_id", e.ConversationID,
				"status", e.Status,
				"redirect_url", e.RedirectURL,
			)
		},
		OnContentError: func(ctx context.Context, e *domain.ContentErrorEvent) {
			logger.WarnContext(ctx, "content_error",
				"conversation_id", e.ConversationID,
				"op", e.Op,
				"kind", e.Kind,
			)
		},
	}
}
