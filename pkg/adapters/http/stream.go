package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
)

// streamBuffer is how many diffs a slow subscriber may lag behind before drops.
const streamBuffer = 10

// StreamManager fans transcript diffs out to SSE subscribers per conversation.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *domain.TranscriptDiff]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan *domain.TranscriptDiff]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for one conversation. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(conversationID string) (<-chan *domain.TranscriptDiff, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan *domain.TranscriptDiff, streamBuffer)
	if _, ok := sm.subscribers[conversationID]; !ok {
		sm.subscribers[conversationID] = make(map[chan *domain.TranscriptDiff]struct{})
	}
	sm.subscribers[conversationID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[conversationID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, conversationID)
				}
			}
		})
	}
}

// Publish delivers a diff to the conversation's subscribers. It has the shape of
// a session.Observer.
func (sm *StreamManager) Publish(_ context.Context, diff *domain.TranscriptDiff) {
	if diff == nil {
		return
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[diff.ConversationID] {
		select {
		case ch <- diff:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping diff", "conversation_id", diff.ConversationID)
		}
	}
}

// Subscribers returns the number of open streams for a conversation.
func (sm *StreamManager) Subscribers(conversationID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[conversationID])
}

// watchFilter keeps a diff when it carries any watched field. An empty filter keeps all.
type watchFilter map[string]bool

func (f watchFilter) keep(d *domain.TranscriptDiff) bool {
	if len(f) == 0 {
		return true
	}
	return (f["state"] && d.State != nil) ||
		(f["node"] && d.CurrentNodeID != nil) ||
		(f["transcript"] && len(d.Appended) > 0) ||
		(f["redirect"] && d.RedirectURL != nil)
}
