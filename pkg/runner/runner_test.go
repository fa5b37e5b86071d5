package runner

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/internal/testutils"
	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversation(t *testing.T) (*flow.Conversation, *testutils.FakeContent) {
	t.Helper()
	fake := testutils.NewFakeContent("q1")
	fake.AddNode(&domain.QuestionNode{
		ID:   "q1",
		Text: "Where to?",
		Choices: []domain.Choice{
			{Label: "Alaska", Key: "A", NextNodeID: "q2"},
			{Label: "Norway", Key: "B", NextNodeID: "q2"},
		},
	}, "")
	fake.AddNode(&domain.QuestionNode{ID: "q2", Text: "Bon voyage"}, "/done")

	eng, err := genie.New("", genie.WithContentService(fake))
	require.NoError(t, err)
	return eng.NewConversation("c1", nil), fake
}

func run(t *testing.T, r *Runner, conv *flow.Conversation) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- r.Run(t.Context(), conv)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Runner timed out")
		return nil
	}
}

func TestRunner_Run_BasicFlow(t *testing.T) {
	conv, fake := newConversation(t)
	out := &bytes.Buffer{}
	r := New(WithInputHandler(NewTextHandler(strings.NewReader("1\n"), out)))

	require.NoError(t, run(t, r, conv))

	output := out.String()
	assert.Contains(t, output, "Where to?")
	assert.Contains(t, output, "1) Alaska")
	assert.Contains(t, output, "2) Norway")
	assert.Contains(t, output, "Bon voyage")
	assert.Contains(t, output, "Redirect: /done")
	assert.Equal(t, domain.StateTerminated, conv.State())

	patches := fake.PatchLog()
	require.Len(t, patches, 1)
	assert.Equal(t, domain.SessionCompleted, patches[0].Patch.Status)
}

func TestRunner_Run_LabelAndUnknownChoice(t *testing.T) {
	conv, _ := newConversation(t)
	out := &bytes.Buffer{}
	r := New(WithInputHandler(NewTextHandler(strings.NewReader("7\nNorway\n"), out)))

	require.NoError(t, run(t, r, conv))

	output := out.String()
	assert.Contains(t, output, `Unknown choice "7"`)
	assert.Equal(t, domain.StateTerminated, conv.State())
	assert.Equal(t, "/done", conv.RedirectURL())
}

func TestRunner_Run_RejectsOversizedAnswer(t *testing.T) {
	conv, _ := newConversation(t)
	out := &bytes.Buffer{}
	r := New(
		WithInputHandler(NewTextHandler(strings.NewReader("Alaska, Norway and everything in between\n\x1bNorway\x07\n"), out)),
		WithMaxInputSize(16),
	)

	require.NoError(t, run(t, r, conv))

	output := out.String()
	assert.Contains(t, output, "Input ignored: input exceeds maximum allowed size")
	assert.Equal(t, domain.StateTerminated, conv.State())
	assert.Equal(t, "/done", conv.RedirectURL())
}

func TestRunner_Run_EndOfInputAbandons(t *testing.T) {
	conv, fake := newConversation(t)
	r := New(WithInputHandler(NewTextHandler(strings.NewReader(""), io.Discard)))

	require.NoError(t, run(t, r, conv))

	assert.Equal(t, domain.StateTerminated, conv.State())
	patches := fake.PatchLog()
	require.Len(t, patches, 1)
	assert.Equal(t, domain.SessionAbandoned, patches[0].Patch.Status)

	responses := fake.ResponseLog()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].IsAbandoned)
	assert.Equal(t, "q1", responses[0].QuestionID)
}

func TestRunner_Run_ExitCommand(t *testing.T) {
	conv, fake := newConversation(t)
	r := New(WithInputHandler(NewTextHandler(strings.NewReader("quit\n1\n"), io.Discard)))

	require.NoError(t, run(t, r, conv))
	assert.Equal(t, domain.SessionAbandoned, fake.PatchLog()[0].Patch.Status)
}

func TestRunner_Run_ContextCancelled(t *testing.T) {
	conv, fake := newConversation(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := New(WithInputHandler(NewTextHandler(pr, io.Discard)))

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, conv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Runner ignored cancellation")
	}
	require.Len(t, fake.PatchLog(), 1)
	assert.Equal(t, domain.SessionAbandoned, fake.PatchLog()[0].Patch.Status)
}

func TestRunner_Run_SavesSnapshots(t *testing.T) {
	conv, _ := newConversation(t)
	store := memory.NewStore()
	r := New(
		WithInputHandler(NewTextHandler(strings.NewReader("Alaska\n"), io.Discard)),
		WithStore(store),
	)

	require.NoError(t, run(t, r, conv))

	snap, err := store.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateTerminated, snap.State)
	assert.Equal(t, "/done", snap.RedirectURL)
}

func TestResolveSelection(t *testing.T) {
	node := &domain.QuestionNode{ID: "q1", Choices: []domain.Choice{
		{Label: "Alaska", NextNodeID: "q2"},
		{Label: "Norway"},
	}}

	tests := []struct {
		input string
		label string
		ok    bool
	}{
		{"1", "Alaska", true},
		{"2", "Norway", true},
		{" Norway ", "Norway", true},
		{"0", "", false},
		{"3", "", false},
		{"Iceland", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sel, ok := resolveSelection(node, tt.input)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.label, sel.Label)
				assert.Equal(t, "q1", sel.NodeID)
			}
		})
	}

	_, ok := resolveSelection(nil, "1")
	assert.False(t, ok)
}
