// Package contentapi implements ports.ContentService over the content service's REST API.
//
// Every response is wrapped in an envelope:
//
//	{"ok": true, "question": {...}, "finalPageUrl": "/products/P1/done"}
//	{"ok": false, "error": "question not found"}
//
// Payloads are decoded with json.Number so numeric ids survive as opaque strings,
// then normalized by the content package.
package contentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/content"
	"github.com/aretw0/genie/pkg/domain"
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// DefaultHTTPTimeout caps every request when no http.Client is supplied.
const DefaultHTTPTimeout = 30 * time.Second

// Client talks to the content service.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the API rooted at baseURL (e.g. "https://shop.example/api/genie").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: DefaultHTTPTimeout},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	OK           bool             `json:"ok"`
	Error        string           `json:"error"`
	FlowID       any              `json:"flowId"`
	Question     map[string]any   `json:"question"`
	FinalPageURL string           `json:"finalPageUrl"`
	Reviews      []map[string]any `json:"reviews"`
	SessionID    any              `json:"sessionId"`
}

// FetchStart loads the active flow and its first question.
func (c *Client) FetchStart(ctx context.Context, flowID string, product *domain.ProductContext) (domain.StartResult, error) {
	q := url.Values{}
	setIf(q, "productCode", product.Code())
	setIf(q, "flowId", flowID)

	env, err := c.do(ctx, "start", http.MethodGet, "/start", q, nil)
	if err != nil {
		return domain.StartResult{}, err
	}
	res, err := nodeResult("start", env)
	if err != nil {
		return domain.StartResult{}, err
	}
	return domain.StartResult{FlowID: opaque(env.FlowID), NodeResult: res}, nil
}

// FetchNode loads one question. A null question with a final page URL is a terminal redirect.
func (c *Client) FetchNode(ctx context.Context, id string, product *domain.ProductContext) (domain.NodeResult, error) {
	q := url.Values{}
	setIf(q, "productCode", product.Code())

	env, err := c.do(ctx, "node", http.MethodGet, "/question/"+url.PathEscape(id), q, nil)
	if err != nil {
		return domain.NodeResult{}, err
	}
	return nodeResult("node", env)
}

// FetchReviews queries reviews. Cards that fail to decode are skipped.
func (c *Client) FetchReviews(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewCard, error) {
	q := url.Values{}
	setIf(q, "productCode", filter.ProductCode)
	setIf(q, "cruiseLine", filter.CruiseLine)
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	env, err := c.do(ctx, "reviews", http.MethodGet, "/reviews", q, nil)
	if err != nil {
		return nil, err
	}
	cards := make([]domain.ReviewCard, 0, len(env.Reviews))
	for _, raw := range env.Reviews {
		card, err := content.DecodeReview(raw)
		if err != nil {
			c.logger.Warn("Skipping malformed review", "err", err)
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// CreateSession registers a session and returns the id issued by the service.
func (c *Client) CreateSession(ctx context.Context, req domain.SessionCreate) (string, error) {
	env, err := c.do(ctx, "session.create", http.MethodPost, "/session", nil, req)
	if err != nil {
		return "", err
	}
	return opaque(env.SessionID), nil
}

// AppendResponse posts one response record.
func (c *Client) AppendResponse(ctx context.Context, rec domain.ResponseRecord) error {
	_, err := c.do(ctx, "response", http.MethodPost, "/response", nil, rec)
	return err
}

type sessionPatchBody struct {
	SessionID string `json:"sessionId"`
	domain.SessionPatch
}

// PatchSession applies a partial session update.
func (c *Client) PatchSession(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	_, err := c.do(ctx, "session.patch", http.MethodPatch, "/session", nil, sessionPatchBody{SessionID: sessionID, SessionPatch: patch})
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (*envelope, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &domain.ContentError{Op: op, Kind: domain.ContentMalformed, Err: err}
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, &domain.ContentError{Op: op, Kind: domain.ContentUnavailable, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.ContentError{Op: op, Kind: domain.ContentTimeout, Err: err}
		}
		return nil, &domain.ContentError{Op: op, Kind: domain.ContentUnavailable, Err: err}
	}
	defer resp.Body.Close()

	env, decodeErr := decode(io.LimitReader(resp.Body, maxBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := domain.ContentUnavailable
		if resp.StatusCode == http.StatusNotFound {
			kind = domain.ContentNotFound
		}
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Error != "" {
			msg = env.Error
		}
		return nil, &domain.ContentError{Op: op, Kind: kind, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return nil, &domain.ContentError{Op: op, Kind: domain.ContentMalformed, Status: resp.StatusCode, Err: decodeErr}
	}
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &domain.ContentError{Op: op, Kind: domain.ContentUnavailable, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	return env, nil
}

func decode(r io.Reader) (*envelope, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

func nodeResult(op string, env *envelope) (domain.NodeResult, error) {
	if env.Question == nil {
		if env.FinalPageURL == "" {
			return domain.NodeResult{}, &domain.ContentError{Op: op, Kind: domain.ContentMalformed, Err: errors.New("neither question nor finalPageUrl")}
		}
		return domain.NodeResult{RedirectURL: env.FinalPageURL}, nil
	}
	node, final, err := content.DecodeQuestion(env.Question)
	if err != nil {
		return domain.NodeResult{}, &domain.ContentError{Op: op, Kind: domain.ContentMalformed, Err: err}
	}
	redirect := env.FinalPageURL
	if final != "" {
		redirect = final
	}
	return domain.NodeResult{Node: node, RedirectURL: redirect}, nil
}

// opaque renders a numeric or string id as a string.
func opaque(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
