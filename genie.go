package genie

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/genie/internal/logging"
	loamAdapter "github.com/aretw0/genie/pkg/adapters/loam"
	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/content"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/aretw0/genie/pkg/reviews"
	"github.com/aretw0/genie/pkg/tracker"
	"github.com/google/uuid"
)

// Engine is the high-level entry point for the Genie library.
// It owns the content client and builds one controller, review selector and
// session tracker per conversation.
type Engine struct {
	service  ports.ContentService
	source   ports.NodeSource
	client   *content.Client
	settings flow.Settings
	intents  *content.IntentTable
	timeouts content.Timeouts
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
	seed     *[2]uint64
	Name     string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithContentService injects the content service, bypassing the local flow loading.
func WithContentService(svc ports.ContentService) Option {
	return func(e *Engine) {
		e.service = svc
	}
}

// WithSettings replaces the conversation settings.
func WithSettings(s flow.Settings) Option {
	return func(e *Engine) {
		e.settings = s
	}
}

// WithIntentTable replaces the label vocabulary used to tag intents.
func WithIntentTable(t content.IntentTable) Option {
	return func(e *Engine) {
		e.intents = &t
	}
}

// WithTimeouts sets the content call timeouts. Zero fields keep their defaults.
func WithTimeouts(t content.Timeouts) Option {
	return func(e *Engine) {
		e.timeouts = t
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock injects the time source of controllers and trackers.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSeed makes review sampling deterministic.
func WithSeed(a, b uint64) Option {
	return func(e *Engine) {
		e.seed = &[2]uint64{a, b}
	}
}

// New initializes a new Genie Engine.
// By default the flow is read from flowPath: a YAML/JSON flow file is served by
// the memory adapter and a directory by the Loam adapter. With WithContentService,
// flowPath can be empty.
func New(flowPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		settings: flow.DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if eng.service == nil {
		if flowPath == "" {
			return nil, fmt.Errorf("flowPath is required when no content service is provided")
		}
		svc, err := openFlow(flowPath)
		if err != nil {
			return nil, err
		}
		eng.service = svc
		eng.source = svc.Source()
		eng.Name = strings.TrimSuffix(filepath.Base(flowPath), filepath.Ext(flowPath))
	} else {
		if s, ok := eng.service.(interface{ Source() ports.NodeSource }); ok {
			eng.source = s.Source()
		}
		if flowPath != "" {
			eng.Name = filepath.Base(flowPath)
		}
	}

	if eng.Name != "" {
		eng.logger = eng.logger.With("flow", eng.Name)
	}

	clientOpts := []content.Option{
		content.WithTimeouts(eng.timeouts),
		content.WithLogger(eng.logger),
	}
	if eng.intents != nil {
		clientOpts = append(clientOpts, content.WithIntentTable(*eng.intents))
	}
	eng.client = content.NewClient(eng.service, clientOpts...)
	return eng, nil
}

func openFlow(path string) (*memory.Service, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("invalid flow path: %w", err)
	}

	if !info.IsDir() {
		f, err := memory.LoadFlowFile(path)
		if err != nil {
			return nil, err
		}
		return f.Service()
	}

	src, err := loamAdapter.Open(path)
	if err != nil {
		return nil, err
	}
	cards, err := src.Reviews(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	// A document directory has no session backend.
	return memory.NewService(src,
		memory.WithFlowID(filepath.Base(path)),
		memory.WithReviews(cards...),
		memory.WithoutSessions(),
	), nil
}

// NewConversation builds a conversation in INITIALIZING state. An empty id gets a UUID.
func (e *Engine) NewConversation(id string, product *domain.ProductContext) *flow.Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	sel, tr := e.collaborators(id, product)
	return flow.New(id, product, e.client, sel, tr, e.flowOptions()...)
}

// Resume rebuilds a conversation from its snapshot.
func (e *Engine) Resume(snap *domain.ConversationSnapshot) *flow.Conversation {
	sel, tr := e.collaborators(snap.ID, snap.Product)
	return flow.Restore(snap, e.client, sel, tr, e.flowOptions()...)
}

func (e *Engine) collaborators(id string, product *domain.ProductContext) (*reviews.Selector, *tracker.Tracker) {
	logger := e.logger.With("conversation_id", id)

	selOpts := []reviews.Option{reviews.WithLogger(logger)}
	if e.seed != nil {
		selOpts = append(selOpts, reviews.WithRand(rand.New(rand.NewPCG(e.seed[0], e.seed[1]))))
	}
	sel := reviews.NewSelector(e.client, product, selOpts...)

	tr := tracker.New(e.client,
		tracker.WithLogger(logger),
		tracker.WithClock(e.now),
	)
	return sel, tr
}

func (e *Engine) flowOptions() []flow.Option {
	return []flow.Option{
		flow.WithSettings(e.settings),
		flow.WithHooks(e.hooks),
		flow.WithLogger(e.logger),
		flow.WithClock(e.now),
	}
}

// Client returns the content client shared by all conversations.
func (e *Engine) Client() *content.Client {
	return e.client
}

// Source returns the local node source, or nil when the engine talks to a remote service.
func (e *Engine) Source() ports.NodeSource {
	return e.source
}

// Settings returns the conversation settings.
func (e *Engine) Settings() flow.Settings {
	return e.settings
}
