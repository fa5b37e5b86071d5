package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/internal/testutils"
	geniemcp "github.com/aretw0/genie/pkg/adapters/mcp"
	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *geniemcp.Server {
	t.Helper()
	fake := testutils.NewFakeContent("q1")
	fake.AddNode(&domain.QuestionNode{
		ID:   "q1",
		Text: "Where to?",
		Choices: []domain.Choice{
			{Label: "Alaska", Key: "A", NextNodeID: "q2"},
			{Label: "Norway", Key: "B", NextNodeID: "q2"},
		},
	}, "")
	fake.AddNode(&domain.QuestionNode{ID: "q2", Text: "Bon voyage"}, "/done")

	eng, err := genie.New("", genie.WithContentService(fake))
	require.NoError(t, err)
	return geniemcp.NewServer(session.NewManager(eng, memory.NewStore()))
}

func call(t *testing.T, s *geniemcp.Server, tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	st := s.MCPServer().GetTool(tool)
	require.NotNil(t, st, "tool %s is registered", tool)

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := st.Handler(context.Background(), req)
	require.NoError(t, err)
	return res
}

func structured(t *testing.T, res *mcp.CallToolResult) geniemcp.ConversationResult {
	t.Helper()
	require.False(t, res.IsError, "tool returned an error: %+v", res.Content)
	out, ok := res.StructuredContent.(geniemcp.ConversationResult)
	require.True(t, ok)
	return out
}

func TestServer_Tools(t *testing.T) {
	s := newServer(t)
	tools := s.MCPServer().ListTools()
	for _, name := range []string{"start_conversation", "choose", "get_transcript", "abandon_conversation"} {
		assert.Contains(t, tools, name)
	}
}

func TestServer_WalkFlow(t *testing.T) {
	s := newServer(t)

	started := structured(t, call(t, s, "start_conversation", map[string]any{"conversation_id": "c1"}))
	assert.Equal(t, "c1", started.ConversationID)
	assert.Equal(t, domain.StateAwaitingChoice, started.State)
	assert.Equal(t, "q1", started.NodeID)
	assert.Equal(t, []string{"Alaska", "Norway"}, started.Choices)
	assert.Empty(t, started.Transcript)

	done := structured(t, call(t, s, "choose", map[string]any{"conversation_id": "c1", "label": "Norway", "node_id": "q1"}))
	assert.Equal(t, domain.StateTerminated, done.State)
	assert.Equal(t, "/done", done.RedirectURL)
	assert.Empty(t, done.Choices)

	full := structured(t, call(t, s, "get_transcript", map[string]any{"conversation_id": "c1"}))
	require.NotEmpty(t, full.Transcript)
	assert.Equal(t, "Where to?", full.Transcript[0].Text)
	assert.Equal(t, domain.RoleUser, full.Transcript[1].Role)
}

func TestServer_ChooseErrors(t *testing.T) {
	s := newServer(t)
	structured(t, call(t, s, "start_conversation", map[string]any{"conversation_id": "c1"}))

	res := call(t, s, "choose", map[string]any{"conversation_id": "c1", "label": "Alaska", "node_id": "q2"})
	assert.True(t, res.IsError, "stale choice is rejected")

	res = call(t, s, "choose", map[string]any{"conversation_id": "missing", "label": "Alaska"})
	assert.True(t, res.IsError)

	res = call(t, s, "choose", map[string]any{"conversation_id": "c1"})
	assert.True(t, res.IsError, "label is required")
}

func TestServer_Abandon(t *testing.T) {
	s := newServer(t)
	structured(t, call(t, s, "start_conversation", map[string]any{"conversation_id": "c1", "product_code": "P1"}))

	out := structured(t, call(t, s, "abandon_conversation", map[string]any{"conversation_id": "c1"}))
	assert.Equal(t, domain.StateTerminated, out.State)
	assert.Empty(t, out.RedirectURL)
}

func TestServer_FlowResource(t *testing.T) {
	flow, err := memory.LoadFlowFile("../memory/testdata/flow.yaml")
	require.NoError(t, err)
	src, err := flow.Source()
	require.NoError(t, err)

	svc, err := flow.Service()
	require.NoError(t, err)
	eng, err := genie.New("", genie.WithContentService(svc))
	require.NoError(t, err)
	s := geniemcp.NewServer(session.NewManager(eng, memory.NewStore()), geniemcp.WithNodeSource(src))

	msg := s.MCPServer().HandleMessage(context.Background(), []byte(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "resources/read",
		"params": {"uri": "genie://flow"}
	}`))
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `\"start\":\"1\"`)
	assert.Contains(t, string(data), "자세한 안내")
}
