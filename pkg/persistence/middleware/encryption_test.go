package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/persistence/middleware"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func secretSnapshot(id string) *domain.ConversationSnapshot {
	return &domain.ConversationSnapshot{
		ID:          id,
		FlowID:      "flow-1",
		State:       domain.StateAwaitingChoice,
		CurrentNode: &domain.QuestionNode{ID: "q1", Text: "Where to?"},
		Transcript: []domain.Message{
			{Role: domain.RoleUser, Kind: domain.KindAnswer, Text: "my-secret-sauce"},
		},
	}
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	secure := mw(underlying)

	ctx := context.Background()
	require.NoError(t, secure.Save(ctx, "c1", secretSnapshot("c1")))

	stored, err := underlying.Load(ctx, "c1")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Sealed)
	assert.Empty(t, stored.Transcript, "transcript must not be stored in the clear")
	assert.Nil(t, stored.CurrentNode)
	assert.Equal(t, domain.StateAwaitingChoice, stored.State)
	assert.NotContains(t, string(stored.Sealed), "my-secret-sauce")

	loaded, err := secure.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, loaded.Transcript, 1)
	assert.Equal(t, "my-secret-sauce", loaded.Transcript[0].Text)
	assert.Equal(t, "q1", loaded.CurrentNode.ID)
	assert.Empty(t, loaded.Sealed)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	oldKey, newKey := generateKey(t), generateKey(t)

	oldMW, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	require.NoError(t, oldMW(underlying).Save(ctx, "c1", secretSnapshot("c1")))

	// Without the old key the snapshot is unreadable.
	strict, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})
	require.NoError(t, err)
	_, err = strict(underlying).Load(ctx, "c1")
	assert.Error(t, err)

	rotated, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	require.NoError(t, err)
	loaded, err := rotated(underlying).Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Transcript[0].Text)
}

func TestEncryptionMiddleware_RejectsPlainSnapshot(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "c1", secretSnapshot("c1")))

	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(underlying).Load(ctx, "c1")
	assert.ErrorIs(t, err, middleware.ErrNotSealed)
}

func TestEncryptionMiddleware_BadKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.ErrorContains(t, err, "32 bytes")
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	ports.RunConversationStoreContract(t, mw(memory.NewStore()))
}

func TestParseKeys(t *testing.T) {
	active, old := generateKey(t), generateKey(t)
	cfg, err := middleware.ParseKeys(
		base64.StdEncoding.EncodeToString(active),
		base64.StdEncoding.EncodeToString(old),
	)
	require.NoError(t, err)
	assert.Equal(t, active, cfg.ActiveKey)
	assert.Equal(t, [][]byte{old}, cfg.FallbackKeys)

	_, err = middleware.ParseKeys("not base64!")
	assert.Error(t, err)
}
