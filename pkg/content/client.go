package content

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/ports"
)

// BroadReviewLimit is the minimum page size of the unscoped review query.
const BroadReviewLimit = 6

// Timeouts bounds each class of content call.
type Timeouts struct {
	Node    time.Duration `yaml:"node" json:"node"`
	Reviews time.Duration `yaml:"reviews" json:"reviews"`
	Session time.Duration `yaml:"session" json:"session"`
	Patch   time.Duration `yaml:"patch" json:"patch"`
}

// DefaultTimeouts returns the production bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Node:    15 * time.Second,
		Reviews: 10 * time.Second,
		Session: 10 * time.Second,
		Patch:   5 * time.Second,
	}
}

// Longest returns the largest bound, used to cap the transport itself.
func (t Timeouts) Longest() time.Duration {
	return max(t.Node, t.Reviews, t.Session, t.Patch)
}

// Client applies timeouts, error classification, review fallback and intent
// tagging on top of a ContentService transport.
type Client struct {
	svc      ports.ContentService
	timeouts Timeouts
	intents  IntentTable
	logger   *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithTimeouts overrides the call bounds. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) {
		if t.Node > 0 {
			c.timeouts.Node = t.Node
		}
		if t.Reviews > 0 {
			c.timeouts.Reviews = t.Reviews
		}
		if t.Session > 0 {
			c.timeouts.Session = t.Session
		}
		if t.Patch > 0 {
			c.timeouts.Patch = t.Patch
		}
	}
}

// WithIntentTable replaces the label vocabulary used to tag choices.
func WithIntentTable(t IntentTable) Option {
	return func(c *Client) {
		c.intents = t
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient wraps a transport.
func NewClient(svc ports.ContentService, opts ...Option) *Client {
	c := &Client{
		svc:      svc,
		timeouts: DefaultTimeouts(),
		intents:  DefaultIntentTable(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Intents returns the table used to tag choices.
func (c *Client) Intents() IntentTable {
	return c.intents
}

// FetchStart loads the first node of a flow.
func (c *Client) FetchStart(ctx context.Context, flowID string, product *domain.ProductContext) (domain.StartResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Node)
	defer cancel()

	res, err := c.svc.FetchStart(ctx, flowID, product)
	if err != nil {
		return domain.StartResult{}, classify(ctx, "start", err)
	}
	c.intents.Tag(res.Node)
	return res, nil
}

// FetchNode loads a node or its terminal redirect.
func (c *Client) FetchNode(ctx context.Context, id string, product *domain.ProductContext) (domain.NodeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Node)
	defer cancel()

	res, err := c.svc.FetchNode(ctx, id, product)
	if err != nil {
		return domain.NodeResult{}, classify(ctx, "node", err)
	}
	c.intents.Tag(res.Node)
	return res, nil
}

// FetchReviews queries the narrow (product-scoped) pool first and falls back to
// the broad pool when the narrow query is empty or fails.
func (c *Client) FetchReviews(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewCard, error) {
	var narrowErr error
	if filter.ProductCode != "" {
		cards, err := c.queryReviews(ctx, filter)
		if err == nil && len(cards) > 0 {
			return cards, nil
		}
		if err != nil {
			narrowErr = err
			c.logger.Warn("Narrow review query failed, falling back to broad pool",
				"product_code", filter.ProductCode,
				"err", err,
			)
		}
	}

	broad := domain.ReviewFilter{
		CruiseLine: filter.CruiseLine,
		Limit:      max(filter.Limit, BroadReviewLimit),
	}
	cards, err := c.queryReviews(ctx, broad)
	if err != nil {
		if narrowErr != nil {
			return nil, errors.Join(narrowErr, err)
		}
		return nil, err
	}
	return cards, nil
}

func (c *Client) queryReviews(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewCard, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Reviews)
	defer cancel()

	cards, err := c.svc.FetchReviews(ctx, filter)
	if err != nil {
		return nil, classify(ctx, "reviews", err)
	}
	for i := range cards {
		cards[i].Rating = domain.ClampRating(cards[i].Rating)
	}
	return cards, nil
}

// CreateSession registers a remote session.
func (c *Client) CreateSession(ctx context.Context, req domain.SessionCreate) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Session)
	defer cancel()

	id, err := c.svc.CreateSession(ctx, req)
	if err != nil {
		return "", classify(ctx, "session.create", err)
	}
	if id == "" {
		return "", &domain.ContentError{Op: "session.create", Kind: domain.ContentMalformed, Err: errors.New("empty session id")}
	}
	return id, nil
}

// AppendResponse appends one response record.
func (c *Client) AppendResponse(ctx context.Context, rec domain.ResponseRecord) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Session)
	defer cancel()

	if err := c.svc.AppendResponse(ctx, rec); err != nil {
		return classify(ctx, "response", err)
	}
	return nil
}

// PatchSession applies a partial session update.
func (c *Client) PatchSession(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Patch)
	defer cancel()

	if err := c.svc.PatchSession(ctx, sessionID, patch); err != nil {
		return classify(ctx, "session.patch", err)
	}
	return nil
}

func classify(ctx context.Context, op string, err error) error {
	var ce *domain.ContentError
	if errors.As(err, &ce) {
		if ce.Op == "" {
			ce.Op = op
		}
		return ce
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &domain.ContentError{Op: op, Kind: domain.ContentTimeout, Err: err}
	case errors.Is(err, domain.ErrNodeNotFound):
		return &domain.ContentError{Op: op, Kind: domain.ContentNotFound, Err: err}
	}
	return &domain.ContentError{Op: op, Kind: domain.ContentUnavailable, Err: err}
}
