package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/genie/pkg/domain"
)

// PatchCall records one PatchSession invocation.
type PatchCall struct {
	SessionID string
	Patch     domain.SessionPatch
}

// FakeContent is a scriptable ports.ContentService for tests.
type FakeContent struct {
	mu sync.Mutex

	FlowID   string
	StartID  string
	StartErr error
	// StartRedirect overrides the redirect FetchStart reports for the start node.
	StartRedirect *string

	Nodes   map[string]domain.NodeResult
	NodeErr map[string]error

	// NarrowReviews answers product-scoped queries, BroadReviews the rest.
	NarrowReviews []domain.ReviewCard
	BroadReviews  []domain.ReviewCard
	NarrowErr     error
	BroadErr      error

	SessionID   string
	SessionErr  error
	ResponseErr error
	PatchErr    error

	// Delay blocks every call until it elapses or the context ends.
	Delay time.Duration

	holds map[string]*hold

	NodeCalls     []string
	ReviewQueries []domain.ReviewFilter
	Sessions      []domain.SessionCreate
	Responses     []domain.ResponseRecord
	Patches       []PatchCall
}

// NewFakeContent returns a fake whose start node is startID.
func NewFakeContent(startID string) *FakeContent {
	return &FakeContent{
		FlowID:    "flow-1",
		StartID:   startID,
		Nodes:     make(map[string]domain.NodeResult),
		NodeErr:   make(map[string]error),
		SessionID: "sess-1",
	}
}

// AddNode registers a node result under the node id.
func (f *FakeContent) AddNode(node *domain.QuestionNode, redirect string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Nodes[node.ID] = domain.NodeResult{Node: node, RedirectURL: redirect}
}

// SetNodeErr makes FetchNode fail for id.
func (f *FakeContent) SetNodeErr(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.NodeErr, id)
		return
	}
	f.NodeErr[id] = err
}

type hold struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// BlockStart parks the next FetchStart until release is called.
func (f *FakeContent) BlockStart() (entered <-chan struct{}, release func()) {
	return f.block("start")
}

// BlockNode parks the next FetchNode for id until release is called.
func (f *FakeContent) BlockNode(id string) (entered <-chan struct{}, release func()) {
	return f.block("node/" + id)
}

func (f *FakeContent) block(key string) (<-chan struct{}, func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	if f.holds == nil {
		f.holds = make(map[string]*hold)
	}
	f.holds[key] = h
	f.mu.Unlock()
	return h.entered, func() { h.once.Do(func() { close(h.release) }) }
}

// park consumes the hold for key, if any, and waits for its release.
func (f *FakeContent) park(ctx context.Context, key string) error {
	f.mu.Lock()
	h := f.holds[key]
	delete(f.holds, key)
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	close(h.entered)
	select {
	case <-h.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeContent) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeContent) FetchStart(ctx context.Context, flowID string, product *domain.ProductContext) (domain.StartResult, error) {
	if err := f.park(ctx, "start"); err != nil {
		return domain.StartResult{}, err
	}
	if err := f.wait(ctx); err != nil {
		return domain.StartResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return domain.StartResult{}, f.StartErr
	}
	res, ok := f.Nodes[f.StartID]
	if !ok {
		return domain.StartResult{}, domain.ErrNodeNotFound
	}
	res.Node = res.Node.Clone()
	if f.StartRedirect != nil {
		res.RedirectURL = *f.StartRedirect
	}
	return domain.StartResult{FlowID: f.FlowID, NodeResult: res}, nil
}

func (f *FakeContent) FetchNode(ctx context.Context, id string, product *domain.ProductContext) (domain.NodeResult, error) {
	if err := f.park(ctx, "node/"+id); err != nil {
		return domain.NodeResult{}, err
	}
	if err := f.wait(ctx); err != nil {
		return domain.NodeResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NodeCalls = append(f.NodeCalls, id)
	if err := f.NodeErr[id]; err != nil {
		return domain.NodeResult{}, err
	}
	res, ok := f.Nodes[id]
	if !ok {
		return domain.NodeResult{}, domain.ErrNodeNotFound
	}
	res.Node = res.Node.Clone()
	return res, nil
}

func (f *FakeContent) FetchReviews(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewCard, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReviewQueries = append(f.ReviewQueries, filter)
	src, err := f.BroadReviews, f.BroadErr
	if filter.ProductCode != "" {
		src, err = f.NarrowReviews, f.NarrowErr
	}
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(src) > filter.Limit {
		src = src[:filter.Limit]
	}
	return append([]domain.ReviewCard(nil), src...), nil
}

func (f *FakeContent) CreateSession(ctx context.Context, req domain.SessionCreate) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SessionErr != nil {
		return "", f.SessionErr
	}
	f.Sessions = append(f.Sessions, req)
	return f.SessionID, nil
}

func (f *FakeContent) AppendResponse(ctx context.Context, rec domain.ResponseRecord) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ResponseErr != nil {
		return f.ResponseErr
	}
	f.Responses = append(f.Responses, rec)
	return nil
}

func (f *FakeContent) PatchSession(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PatchErr != nil {
		return f.PatchErr
	}
	f.Patches = append(f.Patches, PatchCall{SessionID: sessionID, Patch: patch})
	return nil
}

// ResponseLog returns a copy of the recorded responses.
func (f *FakeContent) ResponseLog() []domain.ResponseRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ResponseRecord(nil), f.Responses...)
}

// NodeLog returns a copy of the node ids fetched through FetchNode.
func (f *FakeContent) NodeLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.NodeCalls...)
}

// SessionLog returns a copy of the created sessions.
func (f *FakeContent) SessionLog() []domain.SessionCreate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SessionCreate(nil), f.Sessions...)
}

// PatchLog returns a copy of the recorded patches.
func (f *FakeContent) PatchLog() []PatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PatchCall(nil), f.Patches...)
}

// ReviewLog returns a copy of the recorded review queries.
func (f *FakeContent) ReviewLog() []domain.ReviewFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReviewFilter(nil), f.ReviewQueries...)
}

// Cards builds n review cards with ids prefix-a, prefix-b, and so on.
func Cards(prefix string, n int) []domain.ReviewCard {
	out := make([]domain.ReviewCard, n)
	for i := range out {
		out[i] = domain.ReviewCard{
			ID:     prefix + "-" + string(rune('a'+i)),
			Author: "guest",
			Rating: 5,
			Body:   "wonderful trip",
		}
	}
	return out
}
