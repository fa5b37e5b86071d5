package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/internal/testutils"
	geniehttp "github.com/aretw0/genie/pkg/adapters/http"
	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv  *httptest.Server
	mgr  *session.Manager
	fake *testutils.FakeContent
}

func newHarness(t *testing.T, opts ...geniehttp.Option) *harness {
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
	mgr := session.NewManager(eng, memory.NewStore())

	handler, err := geniehttp.NewHandler(mgr, opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, mgr: mgr, fake: fake}
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp, out
}

func TestServer_HealthAndInfo(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = h.do(t, http.MethodGet, "/info", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "genie-http", body["app"])
	assert.Equal(t, strings.TrimSpace(genie.Version), body["version"])
	assert.Equal(t, "1.0.0", body["api_version"])

	resp, _ = h.do(t, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml", resp.Header.Get("Content-Type"))
}

func TestServer_ConversationRoundTrip(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/conversations", `{"id":"c1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "c1", body["id"])
	assert.Equal(t, "AWAITING_CHOICE", body["state"])
	assert.Equal(t, "sess-1", body["session_id"])
	assert.NotContains(t, body, "reviews", "selector bookkeeping is not exposed")

	resp, body = h.do(t, http.MethodPost, "/conversations/c1/advance", `{"label":"Alaska","node_id":"q1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "TERMINATED", body["state"])
	assert.Equal(t, "/done", body["redirect_url"])

	resp, _ = h.do(t, http.MethodPost, "/conversations/c1/advance", `{"label":"Alaska"}`)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/conversations", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"c1"}, body["ids"])
}

func TestServer_StartWithoutBody(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, http.MethodPost, "/conversations", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["id"])
}

func TestServer_Errors(t *testing.T) {
	h := newHarness(t)
	_, _ = h.do(t, http.MethodPost, "/conversations", `{"id":"c1","product":{"product_code":"P1"}}`)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"Missing label", "/conversations/c1/advance", `{"node_id":"q1"}`, http.StatusBadRequest},
		{"Unknown field", "/conversations/c1/advance", `{"label":"Alaska","bogus":1}`, http.StatusBadRequest},
		{"Unknown conversation", "/conversations/nope/advance", `{"label":"Alaska"}`, http.StatusNotFound},
		{"Stale choice", "/conversations/c1/advance", `{"label":"Alaska","node_id":"q9"}`, http.StatusConflict},
		{"Empty product code", "/conversations", `{"product":{"product_code":""}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}

	resp, _ := h.do(t, http.MethodGet, "/conversations/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_AbandonBeacon(t *testing.T) {
	h := newHarness(t)
	_, _ = h.do(t, http.MethodPost, "/conversations", `{"id":"c1"}`)

	// Beacons are sent as text/plain; the body is ignored.
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/conversations/c1/abandon", strings.NewReader("bye"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	h.mgr.Wait()
	patches := h.fake.PatchLog()
	require.Len(t, patches, 1)
	assert.Equal(t, domain.SessionAbandoned, patches[0].Patch.Status)

	_, body := h.do(t, http.MethodGet, "/conversations/c1", "")
	assert.Equal(t, "TERMINATED", body["state"])
}

func TestServer_SubscribeEvents(t *testing.T) {
	h := newHarness(t)
	_, _ = h.do(t, http.MethodPost, "/conversations", `{"id":"c1"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/conversations/c1/events?watch=redirect", nil)
	require.NoError(t, err)
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())
	require.True(t, lines.Scan())
	assert.Equal(t, "data: connected", lines.Text())

	go func() {
		resp, err := h.srv.Client().Post(h.srv.URL+"/conversations/c1/advance", "application/json", strings.NewReader(`{"label":"Norway"}`))
		if err == nil {
			resp.Body.Close()
		}
	}()

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: ") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	require.NotEmpty(t, data)

	var diff domain.TranscriptDiff
	require.NoError(t, json.Unmarshal([]byte(data), &diff))
	assert.Equal(t, "c1", diff.ConversationID)
	require.NotNil(t, diff.RedirectURL)
	assert.Equal(t, "/done", *diff.RedirectURL)
}

func TestServer_SubscribeUnknownConversation(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodGet, "/conversations/nope/events", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MetricsHandler(t *testing.T) {
	h := newHarness(t, geniehttp.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "genie_up 1\n")
	})))

	resp, err := h.srv.Client().Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "genie_up 1\n", string(data))
}
