// Package mcp exposes conversations as Model Context Protocol tools so agents
// can walk a sales flow the way a visitor would.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// FlowResourceURI lists the nodes of the loaded flow.
const FlowResourceURI = "genie://flow"

// Conversations is the conversation manager the tools drive.
type Conversations interface {
	Start(ctx context.Context, id string, product *domain.ProductContext) (*domain.ConversationSnapshot, error)
	Advance(ctx context.Context, id string, sel flow.Selection) (*domain.ConversationSnapshot, error)
	Abandon(ctx context.Context, id string) (*domain.ConversationSnapshot, error)
	Get(ctx context.Context, id string) (*domain.ConversationSnapshot, error)
}

// ConversationResult is the structured output of every tool.
type ConversationResult struct {
	ConversationID string           `json:"conversation_id" jsonschema_description:"Conversation to pass to later calls"`
	State          domain.FlowState `json:"state" jsonschema_description:"AWAITING_CHOICE or TERMINATED"`
	Question       string           `json:"question,omitempty" jsonschema_description:"Text of the displayed question"`
	NodeID         string           `json:"node_id,omitempty" jsonschema_description:"Id of the displayed question"`
	Choices        []string         `json:"choices,omitempty" jsonschema_description:"Labels accepted by the choose tool"`
	Transcript     []domain.Message `json:"transcript,omitempty" jsonschema_description:"Messages shown so far"`
	RedirectURL    string           `json:"redirect_url,omitempty" jsonschema_description:"Page the visitor is sent to when the conversation ends"`
}

type startArgs struct {
	ConversationID string `json:"conversation_id"`
	ProductCode    string `json:"product_code"`
	CruiseLine     string `json:"cruise_line"`
}

type chooseArgs struct {
	ConversationID string `json:"conversation_id"`
	Label          string `json:"label"`
	NodeID         string `json:"node_id"`
}

type conversationArgs struct {
	ConversationID string `json:"conversation_id"`
}

// Server wraps a conversation manager and exposes it as an MCP Server.
type Server struct {
	convs     Conversations
	source    ports.NodeSource
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithNodeSource publishes the flow's nodes as a resource.
func WithNodeSource(src ports.NodeSource) Option {
	return func(s *Server) {
		s.source = src
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(convs Conversations, opts ...Option) *Server {
	s := &Server{
		convs:     convs,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("genie-mcp", strings.TrimSpace(genie.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	if s.source != nil {
		s.registerResources()
	}
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_conversation",
		mcp.WithDescription("Start a guided sales conversation and return its first question."),
		mcp.WithString("conversation_id", mcp.Description("Id to use; generated when omitted")),
		mcp.WithString("product_code", mcp.Description("Product the visitor is looking at")),
		mcp.WithString("cruise_line", mcp.Description("Cruise line of the product, used to pick reviews")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("choose",
		mcp.WithDescription("Answer the displayed question with one of its choice labels."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
		mcp.WithString("label", mcp.Required(), mcp.Description("Choice label, exactly as offered")),
		mcp.WithString("node_id", mcp.Description("Question the choice belongs to; stale answers are rejected")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleChoose))

	s.mcpServer.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Return the conversation with its full transcript."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleTranscript))

	s.mcpServer.AddTool(mcp.NewTool("abandon_conversation",
		mcp.WithDescription("End the conversation as if the visitor left the page."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleAbandon))
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args startArgs) (ConversationResult, error) {
	var product *domain.ProductContext
	if args.ProductCode != "" {
		product = &domain.ProductContext{ProductCode: args.ProductCode, CruiseLine: args.CruiseLine}
	}
	snap, err := s.convs.Start(ctx, args.ConversationID, product)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("start failed: %w", err)
	}
	return result(snap, false), nil
}

func (s *Server) handleChoose(ctx context.Context, _ mcp.CallToolRequest, args chooseArgs) (ConversationResult, error) {
	if args.ConversationID == "" || args.Label == "" {
		return ConversationResult{}, fmt.Errorf("conversation_id and label are required")
	}
	snap, err := s.convs.Advance(ctx, args.ConversationID, flow.Selection{Label: args.Label, NodeID: args.NodeID})
	if err != nil {
		s.logger.Warn("MCP choose rejected", "conversation_id", args.ConversationID, "err", err)
		return ConversationResult{}, fmt.Errorf("choose failed: %w", err)
	}
	return result(snap, false), nil
}

func (s *Server) handleTranscript(ctx context.Context, _ mcp.CallToolRequest, args conversationArgs) (ConversationResult, error) {
	snap, err := s.convs.Get(ctx, args.ConversationID)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("get_transcript failed: %w", err)
	}
	return result(snap, true), nil
}

func (s *Server) handleAbandon(ctx context.Context, _ mcp.CallToolRequest, args conversationArgs) (ConversationResult, error) {
	snap, err := s.convs.Abandon(ctx, args.ConversationID)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("abandon failed: %w", err)
	}
	return result(snap, false), nil
}

// result summarizes a snapshot. The full transcript is included on request only.
func result(snap *domain.ConversationSnapshot, withTranscript bool) ConversationResult {
	r := ConversationResult{
		ConversationID: snap.ID,
		State:          snap.State,
		RedirectURL:    snap.RedirectURL,
	}
	if snap.State == domain.StateAwaitingChoice && snap.CurrentNode != nil {
		r.NodeID = snap.CurrentNode.ID
		r.Question = snap.CurrentNode.Text
		r.Choices = snap.CurrentNode.Labels()
	}
	if withTranscript {
		r.Transcript = snap.Transcript
	}
	return r
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(FlowResourceURI, "Question Flow",
		mcp.WithResourceDescription("Every question node of the loaded flow"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.source.ListNodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list nodes: %w", err)
		}
		nodes := make([]*domain.QuestionNode, 0, len(ids))
		for _, id := range ids {
			node, err := s.source.GetNode(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to load node %s: %w", id, err)
			}
			nodes = append(nodes, node)
		}
		data, err := json.Marshal(map[string]any{
			"start": s.source.StartNodeID(),
			"nodes": nodes,
		})
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      FlowResourceURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
