package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/internal/testutils"
	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/aretw0/genie/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContent() *testutils.FakeContent {
	fake := testutils.NewFakeContent("q1")
	fake.AddNode(&domain.QuestionNode{
		ID:   "q1",
		Text: "Where to?",
		Choices: []domain.Choice{
			{Label: "Alaska", Key: "A", NextNodeID: "q2"},
		},
	}, "")
	fake.AddNode(&domain.QuestionNode{ID: "q2", Text: "Bon voyage"}, "/done")
	return fake
}

func newManager(t *testing.T, fake *testutils.FakeContent, opts ...session.Option) *session.Manager {
	t.Helper()
	eng, err := genie.New("", genie.WithContentService(fake))
	require.NoError(t, err)
	return session.NewManager(eng, memory.NewStore(), opts...)
}

func TestManager_StartAdvanceGet(t *testing.T) {
	var mu sync.Mutex
	var diffs []*domain.TranscriptDiff
	observer := func(_ context.Context, d *domain.TranscriptDiff) {
		mu.Lock()
		defer mu.Unlock()
		diffs = append(diffs, d)
	}

	mgr := newManager(t, newContent(), session.WithObserver(observer))
	ctx := context.Background()

	snap, err := mgr.Start(ctx, "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingChoice, snap.State)

	snap, err = mgr.Advance(ctx, "c1", flow.Selection{Label: "Alaska", NodeID: "q1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateTerminated, snap.State)
	assert.Equal(t, "/done", snap.RedirectURL)

	stored, err := mgr.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, snap.Transcript, stored.Transcript)

	require.Len(t, diffs, 2)
	assert.Len(t, diffs[0].Appended, 1)
	require.NotNil(t, diffs[1].RedirectURL)
	assert.Equal(t, "/done", *diffs[1].RedirectURL)

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestManager_StartGeneratesID(t *testing.T) {
	mgr := newManager(t, newContent())
	snap, err := mgr.Start(context.Background(), "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
}

func TestManager_AdvanceUnknown(t *testing.T) {
	mgr := newManager(t, newContent())
	_, err := mgr.Advance(context.Background(), "nope", flow.Selection{Label: "x"})
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestManager_ConcurrentAdvanceIsBusy(t *testing.T) {
	mgr := newManager(t, newContent())
	ctx := context.Background()
	_, err := mgr.Start(ctx, "c1", nil)
	require.NoError(t, err)

	err = mgr.WithLock(ctx, "c1", func(ctx context.Context) error {
		_, err := mgr.Advance(ctx, "c1", flow.Selection{Label: "Alaska"})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrBusy)

	snap, err := mgr.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "q1", snap.CurrentNode.ID, "busy advance has no effect")
}

func TestManager_GatingErrorsLeaveStoreUntouched(t *testing.T) {
	mgr := newManager(t, newContent())
	ctx := context.Background()
	_, err := mgr.Start(ctx, "c1", nil)
	require.NoError(t, err)

	_, err = mgr.Advance(ctx, "c1", flow.Selection{Label: "Alaska", NodeID: "q9"})
	assert.ErrorIs(t, err, domain.ErrStaleChoice)

	snap, err := mgr.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, snap.Transcript, 1)
}

func TestManager_AbandonFinalizesInBackground(t *testing.T) {
	fake := newContent()
	mgr := newManager(t, fake)
	ctx := context.Background()
	_, err := mgr.Start(ctx, "c1", nil)
	require.NoError(t, err)

	snap, err := mgr.Abandon(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateTerminated, snap.State)

	mgr.Wait()
	patches := fake.PatchLog()
	require.Len(t, patches, 1)
	assert.Equal(t, domain.SessionAbandoned, patches[0].Patch.Status)

	// Already finalized: nothing else is sent.
	_, err = mgr.Abandon(ctx, "c1")
	require.NoError(t, err)
	mgr.Wait()
	assert.Len(t, fake.PatchLog(), 1)

	_, err = mgr.Advance(ctx, "c1", flow.Selection{Label: "Alaska"})
	assert.ErrorIs(t, err, domain.ErrTerminated)
}

type countingLocker struct {
	mu      sync.Mutex
	locks   int
	unlocks int
	ttl     time.Duration
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks++
	l.ttl = ttl
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocks++
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &countingLocker{}
	mgr := newManager(t, newContent(), session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	ctx := context.Background()

	_, err := mgr.Start(ctx, "c1", nil)
	require.NoError(t, err)
	_, err = mgr.Advance(ctx, "c1", flow.Selection{Label: "Alaska"})
	require.NoError(t, err)

	assert.Equal(t, 2, locker.locks)
	assert.Equal(t, 2, locker.unlocks)
	assert.Equal(t, 5*time.Second, locker.ttl)
}
