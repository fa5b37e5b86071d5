// Package tracker synchronizes the analytics session of one conversation with
// the content service. Every failure is logged and swallowed: analytics never
// block the visitor.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/google/uuid"
)

// SessionAPI is the subset of the content client the tracker needs.
type SessionAPI interface {
	CreateSession(ctx context.Context, req domain.SessionCreate) (string, error)
	AppendResponse(ctx context.Context, rec domain.ResponseRecord) error
	PatchSession(ctx context.Context, sessionID string, patch domain.SessionPatch) error
}

// FinalizeOptions carries the optional parts of a completion.
type FinalizeOptions struct {
	// Payment marks a completion reached through the payment intent.
	Payment bool
}

// Tracker owns one ConversationSession.
type Tracker struct {
	api    SessionAPI
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu      sync.Mutex
	session domain.ConversationSession
	wg      sync.WaitGroup
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithLogger configures a logger for the Tracker.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithIDGenerator injects the generator of local session ids.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) {
		t.newID = gen
	}
}

// New creates a tracker with no session.
func New(api SessionAPI, opts ...Option) *Tracker {
	t := &Tracker{
		api:    api,
		logger: logging.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin registers a session. Any failure yields a local id; Begin never fails.
func (t *Tracker) Begin(ctx context.Context, flowID string, product *domain.ProductContext) domain.SessionID {
	startedAt := t.now()
	id, err := t.api.CreateSession(ctx, domain.SessionCreate{
		FlowID:      flowID,
		ProductCode: product.Code(),
		StartedAt:   startedAt,
	})

	sid := domain.RemoteSession(id)
	if err != nil || id == "" {
		sid = domain.LocalSession(t.newID())
		t.logger.Warn("Session creation failed, continuing with local session",
			"session_id", sid.String(),
			"err", err,
		)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = domain.ConversationSession{
		ID:        sid,
		FlowID:    flowID,
		Product:   product,
		StartedAt: startedAt,
		Status:    domain.SessionActive,
	}
	return sid
}

// Session returns a copy of the tracked session.
func (t *Tracker) Session() domain.ConversationSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Restore replaces the tracked session, e.g. after loading a snapshot.
func (t *Tracker) Restore(s domain.ConversationSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = s
}

// RecordResponse appends a response record. Local sessions are never synced.
// The call is detached from the caller's cancellation so it survives page exits.
func (t *Tracker) RecordResponse(ctx context.Context, rec domain.ResponseRecord) {
	sid := t.Session().ID
	if sid.IsZero() || sid.IsLocal() {
		return
	}
	rec.SessionID = sid.String()
	if err := t.api.AppendResponse(context.WithoutCancel(ctx), rec); err != nil {
		t.logger.Warn("Failed to record response",
			"session_id", sid.String(),
			"question_id", rec.QuestionID,
			"err", err,
		)
	}
}

// Finalize ends the session with status and reports whether this call did it.
// Only the first finalization is applied.
func (t *Tracker) Finalize(ctx context.Context, status domain.SessionStatus, redirect string, opts FinalizeOptions) bool {
	sid, patch, ok := t.claim(status, redirect, opts)
	if !ok {
		return false
	}
	t.send(ctx, sid, patch)
	return true
}

func (t *Tracker) claim(status domain.SessionStatus, redirect string, opts FinalizeOptions) (domain.SessionID, domain.SessionPatch, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.Finalized() {
		return domain.SessionID{}, domain.SessionPatch{}, false
	}

	ended := t.now()
	t.session.Status = status
	t.session.EndedAt = &ended

	patch := domain.SessionPatch{
		Status:       status,
		EndedAt:      &ended,
		FinalPageURL: redirect,
	}
	if !t.session.StartedAt.IsZero() {
		patch.DurationMs = ended.Sub(t.session.StartedAt).Milliseconds()
	}
	if status == domain.SessionCompleted {
		rate := 1.0
		patch.IsCompleted = true
		patch.ConversionRate = &rate
	}
	if opts.Payment {
		patch.PaymentStatus = domain.PaymentPending
		patch.PaymentAttemptedAt = &ended
	}
	return t.session.ID, patch, true
}

func (t *Tracker) send(ctx context.Context, sid domain.SessionID, patch domain.SessionPatch) {
	if sid.IsZero() || sid.IsLocal() {
		return
	}
	if err := t.api.PatchSession(context.WithoutCancel(ctx), sid.String(), patch); err != nil {
		t.logger.Warn("Failed to patch session",
			"session_id", sid.String(),
			"status", patch.Status,
			"err", err,
		)
	}
}

// Abandon records the unanswered node (when one is displayed) and finalizes the
// session as ABANDONED. The work runs in the background, immune to ctx
// cancellation; it reports false when the session was already finalized.
func (t *Tracker) Abandon(ctx context.Context, node *domain.QuestionNode, displayedAt time.Time) bool {
	sid, patch, ok := t.claim(domain.SessionAbandoned, "", FinalizeOptions{})
	if !ok {
		return false
	}

	var rec *domain.ResponseRecord
	if node != nil {
		answered := t.now()
		rec = &domain.ResponseRecord{
			QuestionID:    node.ID,
			DisplayedAt:   displayedAt,
			AnsweredAt:    answered,
			SequenceIndex: node.SequenceIndex,
			IsAbandoned:   true,
		}
		if !displayedAt.IsZero() {
			rec.ResponseTimeMs = answered.Sub(displayedAt).Milliseconds()
		}
	}

	detached := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if rec != nil {
			t.RecordResponse(detached, *rec)
		}
		t.send(detached, sid, patch)
	}()
	return true
}

// Wait blocks until background work has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
