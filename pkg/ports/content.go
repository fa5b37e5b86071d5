package ports

import (
	"context"

	"github.com/aretw0/genie/pkg/domain"
)

// ContentService is the transport to the external content service.
// Implementations perform the calls; timeouts, fallbacks and error
// classification are applied by the content client on top of them.
type ContentService interface {
	// FetchStart returns the active flow and its first node.
	// An empty flowID asks the service for its default flow.
	FetchStart(ctx context.Context, flowID string, product *domain.ProductContext) (domain.StartResult, error)

	// FetchNode returns a node, a terminal redirect, or both.
	// Returns domain.ErrNodeNotFound for unknown ids.
	FetchNode(ctx context.Context, id string, product *domain.ProductContext) (domain.NodeResult, error)

	FetchReviews(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewCard, error)

	// CreateSession registers a session and returns its id.
	CreateSession(ctx context.Context, req domain.SessionCreate) (string, error)

	AppendResponse(ctx context.Context, rec domain.ResponseRecord) error

	PatchSession(ctx context.Context, sessionID string, patch domain.SessionPatch) error
}

// NodeSource enumerates a locally available graph.
// It is used by validation and introspection tools (e.g. 'genie validate').
type NodeSource interface {
	StartNodeID() string
	ListNodes(ctx context.Context) ([]string, error)
	GetNode(ctx context.Context, id string) (*domain.QuestionNode, error)
}
