package ports

import (
	"context"

	"github.com/aretw0/genie/pkg/domain"
)

// ConversationStore defines the interface for persisting conversation snapshots.
// This lets a conversation outlive a single request or process.
type ConversationStore interface {
	// Save persists the snapshot for a given conversation ID.
	Save(ctx context.Context, id string, snap *domain.ConversationSnapshot) error

	// Load retrieves the snapshot for a given conversation ID.
	// Returns domain.ErrConversationNotFound if the conversation does not exist.
	Load(ctx context.Context, id string) (*domain.ConversationSnapshot, error)

	// Delete removes the snapshot for a given conversation ID.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of stored conversations.
	List(ctx context.Context) ([]string, error)
}
