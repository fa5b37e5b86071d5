package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/persistence/middleware"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
	require.NoError(t, err)
	secure := mw(underlying)

	ctx := context.Background()
	card := domain.ReviewCard{ID: "r1", Author: "kim@example.com", Body: "call me at 010-1234-5678"}
	snap := &domain.ConversationSnapshot{
		ID:    "c1",
		State: domain.StateAwaitingChoice,
		Transcript: []domain.Message{
			{Role: domain.RoleUser, Kind: domain.KindAnswer, Text: "write to jdoe@example.com"},
			{Role: domain.RoleBot, Kind: domain.KindReview, Reviews: []domain.ReviewCard{card}},
		},
		Reviews: domain.ReviewState{Pool: []domain.ReviewCard{card}},
	}

	require.NoError(t, secure.Save(ctx, "c1", snap))

	// The caller's snapshot is not modified.
	assert.Equal(t, "write to jdoe@example.com", snap.Transcript[0].Text)
	assert.Equal(t, "kim@example.com", snap.Transcript[1].Reviews[0].Author)
	assert.Equal(t, "kim@example.com", snap.Reviews.Pool[0].Author)

	stored, err := underlying.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "write to ***", stored.Transcript[0].Text)
	assert.Equal(t, "***", stored.Transcript[1].Reviews[0].Author)
	assert.Equal(t, "call me at ***", stored.Transcript[1].Reviews[0].Body)
	assert.Equal(t, "***", stored.Reviews.Pool[0].Author)
	assert.Equal(t, "r1", stored.Reviews.Pool[0].ID)
}

func TestPIIMiddleware_BadPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "c1", secretSnapshot("c1")))

	stored, err := underlying.Load(ctx, "c1")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Sealed)

	loaded, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Transcript[0].Text)

	ports.RunConversationStoreContract(t, store)
}
