// Package http exposes conversations over a JSON API with a server-sent event stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/aretw0/genie/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Conversations is the conversation manager the API drives.
type Conversations interface {
	Start(ctx context.Context, id string, product *domain.ProductContext) (*domain.ConversationSnapshot, error)
	Advance(ctx context.Context, id string, sel flow.Selection) (*domain.ConversationSnapshot, error)
	Abandon(ctx context.Context, id string) (*domain.ConversationSnapshot, error)
	Get(ctx context.Context, id string) (*domain.ConversationSnapshot, error)
	List(ctx context.Context) ([]string, error)
}

// Server serves the conversation API.
type Server struct {
	Conversations Conversations
	Streams       *StreamManager

	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares a StreamManager with other publishers.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewHandler builds the router. When convs is a *session.Manager, the stream
// manager subscribes to its diffs.
func NewHandler(convs Conversations, opts ...Option) (http.Handler, error) {
	s := &Server{
		Conversations: convs,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
		if m, ok := convs.(*session.Manager); ok {
			m.Subscribe(s.Streams.Publish)
		}
	}

	doc, err := GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("failed to load API document: %w", err)
	}
	validator, err := validateRequests(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build request validator: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(validator)
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.ListConversations)
			r.Post("/", s.StartConversation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetConversation)
				r.Post("/advance", s.AdvanceConversation)
				r.Post("/abandon", s.AbandonConversation)
				r.Get("/events", s.SubscribeEvents)
			})
		})
	})
	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// conversationView is the public shape of a snapshot. Review pool bookkeeping stays private.
type conversationView struct {
	ID          string               `json:"id"`
	FlowID      string               `json:"flow_id,omitempty"`
	State       domain.FlowState     `json:"state"`
	CurrentNode *domain.QuestionNode `json:"current_node,omitempty"`
	Transcript  []domain.Message     `json:"transcript"`
	RedirectURL string               `json:"redirect_url,omitempty"`
	SessionID   string               `json:"session_id,omitempty"`
}

func view(snap *domain.ConversationSnapshot) conversationView {
	v := conversationView{
		ID:          snap.ID,
		FlowID:      snap.FlowID,
		State:       snap.State,
		CurrentNode: snap.CurrentNode,
		Transcript:  snap.Transcript,
		RedirectURL: snap.RedirectURL,
	}
	if v.Transcript == nil {
		v.Transcript = []domain.Message{}
	}
	if snap.Session != nil {
		v.SessionID = snap.Session.ID.String()
	}
	return v
}

type startRequest struct {
	ID      string                 `json:"id"`
	Product *domain.ProductContext `json:"product"`
}

// StartConversation handles POST /conversations.
func (s *Server) StartConversation(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	snap, err := s.Conversations.Start(r.Context(), body.ID, body.Product)
	if err != nil {
		s.fail(w, "Start", body.ID, err)
		return
	}
	writeJSON(w, http.StatusCreated, view(snap))
}

type advanceRequest struct {
	Label      string `json:"label"`
	NodeID     string `json:"node_id"`
	NextNodeID string `json:"next_node_id"`
}

// AdvanceConversation handles POST /conversations/{id}/advance.
func (s *Server) AdvanceConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	snap, err := s.Conversations.Advance(r.Context(), id, flow.Selection{
		Label:      body.Label,
		NextNodeID: body.NextNodeID,
		NodeID:     body.NodeID,
	})
	if err != nil {
		s.fail(w, "Advance", id, err)
		return
	}
	writeJSON(w, http.StatusOK, view(snap))
}

// AbandonConversation handles POST /conversations/{id}/abandon, sent as a page-exit beacon.
func (s *Server) AbandonConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// The visitor is gone; finish even if the beacon connection drops.
	if _, err := s.Conversations.Abandon(context.WithoutCancel(r.Context()), id); err != nil {
		s.fail(w, "Abandon", id, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetConversation handles GET /conversations/{id}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.Conversations.Get(r.Context(), id)
	if err != nil {
		s.fail(w, "Get", id, err)
		return
	}
	writeJSON(w, http.StatusOK, view(snap))
}

// ListConversations handles GET /conversations.
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Conversations.List(r.Context())
	if err != nil {
		s.fail(w, "List", "", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "genie-http",
		"version":     strings.TrimSpace(genie.Version),
		"api_version": apiVersion,
	})
}

// SubscribeEvents handles GET /conversations/{id}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}
	if _, err := s.Conversations.Get(r.Context(), id); err != nil {
		s.fail(w, "Subscribe", id, err)
		return
	}

	filter := watchFilter{}
	if watch := r.URL.Query().Get("watch"); watch != "" {
		for _, field := range strings.Split(watch, ",") {
			filter[strings.TrimSpace(field)] = true
		}
	}

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribed to conversation", "conversation_id", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "conversation_id", id)
			return
		case diff, ok := <-ch:
			if !ok {
				return
			}
			if !filter.keep(diff) {
				continue
			}
			data, err := json.Marshal(diff)
			if err != nil {
				s.logger.Error("SSE: Failed to encode diff", "conversation_id", id, "err", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// fail maps engine errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, op, id string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "conversation_id", id, "err", err)
	} else {
		s.logger.Debug(op+" rejected", "conversation_id", id, "status", status, "err", err)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrStaleChoice), errors.Is(err, domain.ErrNotStarted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTerminated):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
