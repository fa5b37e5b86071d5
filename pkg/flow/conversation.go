// Package flow drives one conversation through the question graph: it renders
// nodes, resolves choices, injects review cards at beat positions and hands
// session bookkeeping to the tracker.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/reviews"
	"github.com/aretw0/genie/pkg/tracker"
)

// NodeFetcher loads nodes. The content client implements it.
type NodeFetcher interface {
	FetchStart(ctx context.Context, flowID string, product *domain.ProductContext) (domain.StartResult, error)
	FetchNode(ctx context.Context, id string, product *domain.ProductContext) (domain.NodeResult, error)
}

// Selection is the visitor's answer to the displayed node.
type Selection struct {
	Label string `json:"label"`
	// NextNodeID is used when the label matches no offered choice.
	NextNodeID string `json:"next_node_id,omitempty"`
	// NodeID is the node the choice was offered on; a mismatch rejects the selection.
	NodeID string `json:"node_id,omitempty"`
}

// Conversation is the controller of one visitor's chat.
type Conversation struct {
	id       string
	product  *domain.ProductContext
	content  NodeFetcher
	selector *reviews.Selector
	tracker  *tracker.Tracker
	settings Settings
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time

	busy atomic.Bool

	mu          sync.Mutex
	state       domain.FlowState
	flowID      string
	current     *domain.QuestionNode
	displayedAt time.Time
	transcript  []domain.Message
	redirect    string
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(c *Conversation) {
		c.settings = s
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(c *Conversation) {
		c.hooks = h
	}
}

// WithLogger configures a logger for the Conversation.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conversation) {
		c.logger = logger
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) {
		c.now = now
	}
}

// New creates a conversation in INITIALIZING state. The selector and tracker
// belong to this conversation alone.
func New(id string, product *domain.ProductContext, content NodeFetcher, sel *reviews.Selector, tr *tracker.Tracker, opts ...Option) *Conversation {
	c := &Conversation{
		id:       id,
		product:  product,
		content:  content,
		selector: sel,
		tracker:  tr,
		settings: DefaultSettings(),
		logger:   logging.NewNop(),
		now:      time.Now,
		state:    domain.StateInitializing,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("conversation_id", id)
	return c
}

// Restore rebuilds a conversation from a snapshot.
func Restore(snap *domain.ConversationSnapshot, content NodeFetcher, sel *reviews.Selector, tr *tracker.Tracker, opts ...Option) *Conversation {
	c := New(snap.ID, snap.Product, content, sel, tr, opts...)
	c.state = snap.State
	c.flowID = snap.FlowID
	c.current = snap.CurrentNode.Clone()
	if snap.DisplayedAt > 0 {
		c.displayedAt = time.UnixMilli(snap.DisplayedAt)
	}
	c.transcript = append([]domain.Message(nil), snap.Transcript...)
	c.redirect = snap.RedirectURL
	if snap.Session != nil {
		tr.Restore(*snap.Session)
	}
	sel.Restore(snap.Reviews)
	return c
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// IsBusy reports whether an operation is in flight.
func (c *Conversation) IsBusy() bool { return c.busy.Load() }

// State returns the lifecycle state.
func (c *Conversation) State() domain.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentNode returns a copy of the displayed node, or nil.
func (c *Conversation) CurrentNode() *domain.QuestionNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// RedirectURL returns the terminal redirect, if any.
func (c *Conversation) RedirectURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirect
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.transcript...)
}

// Snapshot exports the conversation.
func (c *Conversation) Snapshot() *domain.ConversationSnapshot {
	session := c.tracker.Session()
	reviewState := c.selector.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	snap := &domain.ConversationSnapshot{
		ID:          c.id,
		FlowID:      c.flowID,
		Product:     c.product,
		State:       c.state,
		CurrentNode: c.current.Clone(),
		Transcript:  append([]domain.Message(nil), c.transcript...),
		RedirectURL: c.redirect,
		Reviews:     reviewState,
	}
	if !c.displayedAt.IsZero() {
		snap.DisplayedAt = c.displayedAt.UnixMilli()
	}
	if !session.ID.IsZero() || session.Finalized() {
		snap.Session = &session
	}
	return snap
}

// Wait blocks until background session work has finished.
func (c *Conversation) Wait() {
	c.tracker.Wait()
}

func (c *Conversation) acquire() error {
	if !c.busy.CompareAndSwap(false, true) {
		return domain.ErrBusy
	}
	return nil
}

func (c *Conversation) release() {
	c.busy.Store(false)
}

// Start loads the first node. A content failure leaves the conversation in
// INITIALIZING with an inline error, and Start may be called again.
func (c *Conversation) Start(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	switch c.State() {
	case domain.StateTerminated:
		return domain.ErrTerminated
	case domain.StateAwaitingChoice:
		return nil
	}

	res, err := c.content.FetchStart(ctx, c.settings.FlowID, c.product)
	if err != nil {
		c.contentFailed(ctx, "start", err)
		c.notice(domain.KindError, c.settings.Messages.StartFailed)
		return nil
	}

	c.mu.Lock()
	if c.state == domain.StateTerminated {
		// The visitor left while the start node was loading.
		c.mu.Unlock()
		return nil
	}
	c.flowID = res.FlowID
	c.mu.Unlock()

	if c.tracker.Session().ID.IsZero() {
		sid := c.tracker.Begin(ctx, res.FlowID, c.product)
		c.mu.Lock()
		c.logger = c.logger.With("session_id", sid.String())
		c.mu.Unlock()
	}

	c.enter(ctx, res.NodeResult, true)
	return nil
}

// Advance applies the visitor's selection to the displayed node.
// Only gating errors are returned; content failures surface in the transcript.
func (c *Conversation) Advance(ctx context.Context, sel Selection) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	state, node, displayedAt := c.state, c.current, c.displayedAt
	c.mu.Unlock()

	switch {
	case state == domain.StateTerminated:
		return domain.ErrTerminated
	case node == nil || state != domain.StateAwaitingChoice:
		return domain.ErrNotStarted
	case sel.NodeID != "" && sel.NodeID != node.ID:
		return domain.ErrStaleChoice
	}

	answered := c.now()
	choice, matched := node.ChoiceByLabel(sel.Label)
	if !matched {
		c.log().Warn("Selected label matches no offered choice", "node_id", node.ID, "label", sel.Label)
		choice = domain.Choice{Label: sel.Label, NextNodeID: sel.NextNodeID, Intent: domain.IntentNone}
	}

	key := choice.Key
	if choice.MoreReviews && key == "" {
		key = domain.ReviewPopupKey
	}
	rec := domain.ResponseRecord{
		QuestionID:        node.ID,
		SelectedChoiceKey: domain.StringPtr(key),
		SelectedLabel:     choice.Label,
		ResponseTimeMs:    answered.Sub(displayedAt).Milliseconds(),
		DisplayedAt:       displayedAt,
		AnsweredAt:        answered,
		NextNodeID:        domain.StringPtr(choice.NextNodeID),
		SequenceIndex:     node.SequenceIndex,
	}

	c.appendUser(node.ID, choice.Label)
	c.tracker.RecordResponse(ctx, rec)

	intent := choice.Intent
	if intent.Terminal() && c.product == nil {
		c.log().Debug("Terminal intent ignored without product context", "intent", intent)
		intent = domain.IntentNone
	}
	if c.hooks.OnResponse != nil {
		c.hooks.OnResponse(ctx, &domain.ResponseEvent{
			EventBase:      c.event(domain.EventResponse),
			NodeID:         node.ID,
			Key:            key,
			Intent:         intent,
			ResponseTimeMs: rec.ResponseTimeMs,
		})
	}

	switch intent {
	case domain.IntentPayment:
		c.notice(domain.KindInfo, c.settings.Messages.Payment)
		c.finish(ctx, c.paymentRedirect(), true)
		return nil
	case domain.IntentInquiry:
		c.finish(ctx, expandRedirect(c.settings.Redirects.Inquiry, c.product.Code(), ""), false)
		return nil
	case domain.IntentDefer:
		c.notice(domain.KindInfo, c.settings.Messages.Defer)
		return nil
	}

	if choice.MoreReviews {
		c.showMoreReviews(ctx)
		if choice.HasEdge() {
			c.goTo(ctx, choice.NextNodeID)
		}
		return nil
	}

	if choice.HasEdge() {
		c.goTo(ctx, choice.NextNodeID)
		return nil
	}
	c.deadEnd(ctx, node)
	return nil
}

// Abandon handles a page exit. The displayed, unanswered node is recorded as
// abandoned and the session finalized ABANDONED in the background, at most once.
func (c *Conversation) Abandon(ctx context.Context) {
	c.mu.Lock()
	var node *domain.QuestionNode
	var displayedAt time.Time
	if c.state == domain.StateAwaitingChoice {
		node, displayedAt = c.current.Clone(), c.displayedAt
	}
	c.state = domain.StateTerminated
	c.mu.Unlock()

	if !c.tracker.Abandon(ctx, node, displayedAt) {
		return
	}
	c.log().Info("Conversation abandoned")
	if c.hooks.OnTerminate != nil {
		c.hooks.OnTerminate(ctx, &domain.TerminateEvent{
			EventBase: c.event(domain.EventTerminate),
			Status:    domain.SessionAbandoned,
		})
	}
}

func (c *Conversation) goTo(ctx context.Context, id string) {
	res, err := c.content.FetchNode(ctx, id, c.product)
	if err != nil {
		c.contentFailed(ctx, "node", err)
		c.notice(domain.KindError, c.settings.Messages.NodeFailed)
		return
	}
	c.enter(ctx, res, false)
}

// deadEnd asks the content service for the redirect of a node whose choice had no edge.
func (c *Conversation) deadEnd(ctx context.Context, node *domain.QuestionNode) {
	res, err := c.content.FetchNode(ctx, node.ID, c.product)
	if err != nil {
		c.contentFailed(ctx, "node", err)
		c.notice(domain.KindError, c.settings.Messages.NodeFailed)
		return
	}
	if res.RedirectURL != "" {
		c.finish(ctx, res.RedirectURL, false)
		return
	}
	c.fatal(ctx, node.ID)
}

// enter displays a fetched node, or terminates when the result is terminal.
func (c *Conversation) enter(ctx context.Context, res domain.NodeResult, first bool) {
	node := res.Node
	if node == nil || node.IsTerminal() {
		if node != nil && strings.TrimSpace(node.Text) != "" {
			c.appendBot(c.questionMessage(node, nil))
		}
		id := ""
		if node != nil {
			id = node.ID
		}
		redirect := res.RedirectURL
		if redirect == "" && first && id != "" {
			// The start payload carries no final page; the node endpoint does.
			again, err := c.content.FetchNode(ctx, id, c.product)
			if err != nil {
				c.contentFailed(ctx, "node", err)
				c.notice(domain.KindError, c.settings.Messages.StartFailed)
				return
			}
			redirect = again.RedirectURL
		}
		if redirect != "" {
			c.finish(ctx, redirect, false)
			return
		}
		c.fatal(ctx, id)
		return
	}

	node = node.Clone()
	idx := node.SequenceIndex

	var cards []domain.ReviewCard
	if c.product != nil {
		if first {
			c.inject(ctx, c.settings.IntroKey, c.settings.Messages.Intro)
		}
		if idx != nil {
			if beat, ok := c.settings.beatFor(*idx); ok {
				c.inject(ctx, fmt.Sprintf("%s-%d", beat.Name, *idx), beat.Intro)
			}
		}
		if n := c.settings.reviewCount(idx, node.Text); n > 0 {
			if _, err := c.selector.Ensure(ctx, n); err != nil {
				c.contentFailed(ctx, "reviews", err)
			}
			cards = c.selector.PickRandom(n)
		}
	}
	if len(cards) > 0 && !c.settings.hasReviewOption(node.Labels()) {
		node.Choices = append(node.Choices, domain.Choice{
			Label:       c.settings.MoreReviewsLabel,
			Intent:      domain.IntentNone,
			MoreReviews: true,
		})
	}

	c.mu.Lock()
	if c.state == domain.StateTerminated {
		c.mu.Unlock()
		return
	}
	c.current = node
	c.displayedAt = c.now()
	c.state = domain.StateAwaitingChoice
	c.mu.Unlock()

	c.appendBot(c.questionMessage(node, cards))
	if c.hooks.OnNodeEnter != nil {
		c.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase:     c.event(domain.EventNodeEnter),
			NodeID:        node.ID,
			SequenceIndex: idx,
		})
	}
}

func (c *Conversation) inject(ctx context.Context, key, intro string) {
	msg, ok := c.selector.InjectOnce(ctx, key, intro, 1)
	if !ok {
		return
	}
	c.appendBot(msg)
	if c.hooks.OnInjection != nil {
		c.hooks.OnInjection(ctx, &domain.InjectionEvent{
			EventBase:  c.event(domain.EventInjection),
			ContextKey: key,
			Count:      len(msg.Reviews),
		})
	}
}

func (c *Conversation) showMoreReviews(ctx context.Context) {
	pool, err := c.selector.Ensure(ctx, c.settings.MoreReviewsPool)
	if err != nil {
		c.contentFailed(ctx, "reviews", err)
	}
	if cards := c.selector.PickRandom(c.settings.MoreReviewsCount); len(cards) > 0 {
		c.appendBot(domain.Message{Kind: domain.KindReview, Text: c.settings.Messages.MoreReviews, Reviews: cards})
		return
	}
	if len(pool) > 0 {
		if card, ok := c.selector.Any(); ok {
			c.appendBot(domain.Message{Kind: domain.KindReview, Text: c.settings.Messages.MoreReviewsFallback, Reviews: []domain.ReviewCard{card}})
			return
		}
	}
	c.notice(domain.KindInfo, c.settings.Messages.MoreReviewsUnavailable)
}

func (c *Conversation) paymentRedirect() string {
	sid := c.tracker.Session().ID
	session := ""
	if !sid.IsZero() && !sid.IsLocal() {
		session = sid.String()
	}
	return expandRedirect(c.settings.Redirects.Payment, c.product.Code(), session)
}

// finish completes the conversation with a redirect.
func (c *Conversation) finish(ctx context.Context, redirect string, payment bool) {
	c.mu.Lock()
	if c.state == domain.StateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = domain.StateTerminated
	c.redirect = redirect
	c.mu.Unlock()

	if !c.tracker.Finalize(ctx, domain.SessionCompleted, redirect, tracker.FinalizeOptions{Payment: payment}) {
		return
	}
	c.log().Info("Conversation completed", "redirect", redirect)
	if c.hooks.OnTerminate != nil {
		c.hooks.OnTerminate(ctx, &domain.TerminateEvent{
			EventBase:   c.event(domain.EventTerminate),
			Status:      domain.SessionCompleted,
			RedirectURL: redirect,
		})
	}
}

// fatal ends the conversation without a redirect.
func (c *Conversation) fatal(ctx context.Context, nodeID string) {
	c.log().Error("Flow reached a dead end", "node_id", nodeID)
	c.appendBot(domain.Message{Kind: domain.KindFatal, NodeID: nodeID, Text: c.settings.Messages.DeadEnd})

	c.mu.Lock()
	c.state = domain.StateTerminated
	c.mu.Unlock()

	if c.hooks.OnTerminate != nil {
		c.hooks.OnTerminate(ctx, &domain.TerminateEvent{EventBase: c.event(domain.EventTerminate)})
	}
}

func (c *Conversation) contentFailed(ctx context.Context, op string, err error) {
	c.log().Warn("Content call failed", "op", op, "err", err)
	if c.hooks.OnContentError == nil {
		return
	}
	kind := domain.ContentUnavailable
	var ce *domain.ContentError
	if errors.As(err, &ce) {
		kind = ce.Kind
	}
	c.hooks.OnContentError(ctx, &domain.ContentErrorEvent{
		EventBase: c.event(domain.EventContentError),
		Op:        op,
		Kind:      kind,
	})
}

func (c *Conversation) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: c.now(), Type: t, ConversationID: c.id}
}

func (c *Conversation) questionMessage(node *domain.QuestionNode, cards []domain.ReviewCard) domain.Message {
	text := c.sanitize(node.Text)
	if aux := c.sanitize(node.AuxiliaryInfo); aux != "" {
		if text != "" {
			text += "\n\n"
		}
		text += aux
	}
	return domain.Message{
		Kind:        domain.KindQuestion,
		NodeID:      node.ID,
		Text:        text,
		Choices:     append([]domain.Choice(nil), node.Choices...),
		Reviews:     cards,
		Attachments: node.Attachments,
	}
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)

func (c *Conversation) sanitize(s string) string {
	for _, p := range c.settings.StripPhrases {
		if p != "" {
			s = strings.ReplaceAll(s, p, "")
		}
	}
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func (c *Conversation) log() *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// notice appends an error or info line stamped with the displayed node.
// Errors are always shown; an info line is dropped only when it repeats the
// previous message.
func (c *Conversation) notice(kind domain.MessageKind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := domain.Message{Role: domain.RoleBot, Kind: kind, Text: c.sanitize(text)}
	if c.current != nil {
		msg.NodeID = c.current.ID
	}
	if n := len(c.transcript); n > 0 {
		prev := c.transcript[n-1]
		if prev.Role == domain.RoleBot && prev.Kind == kind && prev.SameContent(msg) && kind != domain.KindError {
			return
		}
	}
	c.transcript = append(c.transcript, msg)
}

// appendBot adds a bot message unless an equivalent one is already in the transcript.
func (c *Conversation) appendBot(msg domain.Message) {
	msg.Role = domain.RoleBot
	msg.Text = c.sanitize(msg.Text)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.transcript {
		if m.Role != domain.RoleBot {
			continue
		}
		if m.SameContent(msg) || (len(msg.Choices) > 0 && m.SameChoices(msg)) {
			c.logger.Debug("Duplicate bot message dropped", "node_id", msg.NodeID)
			return
		}
	}
	c.transcript = append(c.transcript, msg)
}

func (c *Conversation) appendUser(nodeID, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = append(c.transcript, domain.Message{
		Role:   domain.RoleUser,
		Kind:   domain.KindAnswer,
		NodeID: nodeID,
		Text:   label,
	})
}
