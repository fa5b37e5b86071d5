package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot(id string) *domain.ConversationSnapshot {
	return &domain.ConversationSnapshot{
		ID:          id,
		FlowID:      "flow-1",
		Product:     &domain.ProductContext{ProductCode: "P100"},
		State:       domain.StateAwaitingChoice,
		CurrentNode: &domain.QuestionNode{ID: "q1", Text: "Where to?", Choices: []domain.Choice{{Label: "Alaska", Key: "A", NextNodeID: "q2"}}},
		DisplayedAt: 1700000000000,
		Transcript: []domain.Message{
			{Role: domain.RoleBot, Kind: domain.KindQuestion, NodeID: "q1", Text: "Where to?"},
		},
		Session: &domain.ConversationSession{
			ID:     domain.LocalSession("x"),
			Status: domain.SessionActive,
		},
		Reviews: domain.ReviewState{
			Pool:  []domain.ReviewCard{{ID: "r1", Rating: 5, Body: "great"}},
			Used:  []string{"r1"},
			Shown: []string{"intro"},
		},
	}
}

// RunConversationStoreContract runs a suite of tests to verify that a ConversationStore
// implementation adheres to the defined interface contract.
func RunConversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	convID := "contract-test-conv-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(convID)

		err := store.Save(ctx, convID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.State, loaded.State)
		assert.Equal(t, "q1", loaded.CurrentNode.ID)
		assert.Equal(t, "P100", loaded.Product.ProductCode)
		assert.Len(t, loaded.Transcript, 1)
		assert.True(t, loaded.Session.ID.IsLocal())
		assert.Equal(t, []string{"r1"}, loaded.Reviews.Used)
	})

	t.Run("Loaded Copy Is Isolated", func(t *testing.T) {
		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err)
		loaded.Transcript = append(loaded.Transcript, domain.Message{Text: "mutated"})
		loaded.CurrentNode.ID = "mutated"

		again, err := store.Load(ctx, convID)
		require.NoError(t, err)
		assert.Len(t, again.Transcript, 1)
		assert.Equal(t, "q1", again.CurrentNode.ID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+convID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, convID, contractSnapshot(convID))
		require.NoError(t, err)

		err = store.Delete(ctx, convID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, convID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound, "Load after Delete should return ErrConversationNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := convID + "-1"
		id2 := convID + "-2"
		_ = store.Save(ctx, id1, contractSnapshot(id1))
		_ = store.Save(ctx, id2, contractSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
