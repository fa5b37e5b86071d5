package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/genie/pkg/adapters/file"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunConversationStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Overwrite(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	snap := &domain.ConversationSnapshot{ID: "c1", State: domain.StateAwaitingChoice}
	require.NoError(t, store.Save(ctx, "c1", snap))
	snap.State = domain.StateTerminated
	snap.RedirectURL = "/done"
	require.NoError(t, store.Save(ctx, "c1", snap))

	loaded, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateTerminated, loaded.State)
	assert.Equal(t, "/done", loaded.RedirectURL)

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1.json", entries[0].Name())
}

func TestFileStore_ListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "b", &domain.ConversationSnapshot{ID: "b"}))
	require.NoError(t, store.Save(ctx, "a", &domain.ConversationSnapshot{ID: "a"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-c-123.json"), []byte("{"), 0o644))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestFileStore_MissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "absent"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_InvalidID(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "..", "../escape", `a\b`} {
		err := store.Save(ctx, id, &domain.ConversationSnapshot{})
		assert.ErrorIs(t, err, file.ErrInvalidID, id)
		_, err = store.Load(ctx, id)
		assert.ErrorIs(t, err, file.ErrInvalidID, id)
	}
}

func TestFileStore_DefaultDir(t *testing.T) {
	assert.Equal(t, file.DefaultDir, file.New("").BasePath)
}
