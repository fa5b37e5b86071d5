package http

import (
	"context"
	"testing"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamManager_PublishAndUnsubscribe(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("c1")
	other, cancelOther := sm.Subscribe("c2")
	defer cancelOther()

	sm.Publish(context.Background(), &domain.TranscriptDiff{ConversationID: "c1"})
	got := <-ch
	assert.Equal(t, "c1", got.ConversationID)
	assert.Empty(t, other)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, sm.Subscribers("c1"))
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("c1")
	defer cancel()

	for i := 0; i < streamBuffer+5; i++ {
		sm.Publish(context.Background(), &domain.TranscriptDiff{ConversationID: "c1"})
	}
	assert.Len(t, ch, streamBuffer)
}

func TestWatchFilter(t *testing.T) {
	state := domain.StateTerminated
	url := "/done"

	tests := []struct {
		name   string
		filter watchFilter
		diff   domain.TranscriptDiff
		keep   bool
	}{
		{"Empty keeps all", watchFilter{}, domain.TranscriptDiff{}, true},
		{"State", watchFilter{"state": true}, domain.TranscriptDiff{State: &state}, true},
		{"Transcript only", watchFilter{"transcript": true}, domain.TranscriptDiff{State: &state}, false},
		{"Transcript", watchFilter{"transcript": true}, domain.TranscriptDiff{Appended: []domain.Message{{Text: "x"}}}, true},
		{"Redirect", watchFilter{"redirect": true, "node": true}, domain.TranscriptDiff{RedirectURL: &url}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.keep, tt.filter.keep(&tt.diff))
		})
	}
}

func TestGetSwagger(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/conversations/{id}/advance"))
}
