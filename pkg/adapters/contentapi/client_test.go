package contentapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/genie/pkg/adapters/contentapi"
	"github.com/aretw0/genie/pkg/content"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.ContentService = (*contentapi.Client)(nil)

type recorded struct {
	method string
	query  string
	body   map[string]any
}

// fakeAPI serves canned envelopes and records what it received.
func fakeAPI(t *testing.T) (*contentapi.Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	record := func(r *http.Request) {
		rec := recorded{method: r.Method, query: r.URL.RawQuery}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				require.NoError(t, json.Unmarshal(data, &rec.body))
			}
		}
		calls = append(calls, rec)
	}

	r := chi.NewRouter()
	r.Get("/api/start", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = io.WriteString(w, `{"ok":true,"flowId":7,"question":{"id":1,"questionText":"Hi","optionA":"네","optionB":"아니요","nextQuestionIdA":2,"nextQuestionIdB":null,"order":1}}`)
	})
	r.Get("/api/question/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		switch chi.URLParam(r, "id") {
		case "2":
			_, _ = io.WriteString(w, `{"ok":true,"question":{"id":"2","questionText":"Pick","options":["a","b"],"nextQuestionIds":[3,0]}}`)
		case "9":
			_, _ = io.WriteString(w, `{"ok":true,"question":null,"finalPageUrl":"/products/P1/done"}`)
		case "bad":
			_, _ = io.WriteString(w, `{"ok":true,"question":{"questionText":"no id"}}`)
		case "garbage":
			_, _ = io.WriteString(w, `<html>`)
		case "rejected":
			_, _ = io.WriteString(w, `{"ok":false,"error":"flow inactive"}`)
		case "boom":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"ok":false,"error":"db down"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"ok":false,"error":"question not found"}`)
		}
	})
	r.Get("/api/reviews", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = io.WriteString(w, `{"ok":true,"reviews":[{"id":11,"authorName":"Kim","rating":9,"content":"great","images":"[\"/img/a b.jpg\"]"},{"content":"no id"}]}`)
	})
	r.Post("/api/session", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = io.WriteString(w, `{"ok":true,"sessionId":42}`)
	})
	r.Patch("/api/session", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	r.Post("/api/response", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = io.WriteString(w, `{"ok":true}`)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return contentapi.New(srv.URL+"/api/", contentapi.WithHTTPClient(srv.Client())), &calls
}

func TestClient_FetchStart(t *testing.T) {
	c, calls := fakeAPI(t)

	res, err := c.FetchStart(context.Background(), "", &domain.ProductContext{ProductCode: "P1"})
	require.NoError(t, err)
	assert.Equal(t, "7", res.FlowID)
	require.NotNil(t, res.Node)
	assert.Equal(t, "1", res.Node.ID)
	require.Len(t, res.Node.Choices, 2)
	assert.Equal(t, "2", res.Node.Choices[0].NextNodeID)
	assert.False(t, res.Node.Choices[1].HasEdge())
	assert.Equal(t, "productCode=P1", (*calls)[0].query)
}

func TestClient_FetchNode(t *testing.T) {
	c, _ := fakeAPI(t)
	ctx := context.Background()

	t.Run("N-ary question", func(t *testing.T) {
		res, err := c.FetchNode(ctx, "2", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, res.Node.Labels())
		assert.Empty(t, res.RedirectURL)
	})

	t.Run("Terminal redirect", func(t *testing.T) {
		res, err := c.FetchNode(ctx, "9", nil)
		require.NoError(t, err)
		assert.Nil(t, res.Node)
		assert.Equal(t, "/products/P1/done", res.RedirectURL)
	})

	t.Run("Not found", func(t *testing.T) {
		_, err := c.FetchNode(ctx, "404", nil)
		assert.True(t, domain.IsContentKind(err, domain.ContentNotFound))
		assert.ErrorContains(t, err, "question not found")
	})

	t.Run("Server error", func(t *testing.T) {
		_, err := c.FetchNode(ctx, "boom", nil)
		var ce *domain.ContentError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, domain.ContentUnavailable, ce.Kind)
		assert.Equal(t, http.StatusInternalServerError, ce.Status)
	})

	t.Run("Rejected envelope", func(t *testing.T) {
		_, err := c.FetchNode(ctx, "rejected", nil)
		assert.True(t, domain.IsContentKind(err, domain.ContentUnavailable))
		assert.ErrorContains(t, err, "flow inactive")
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := c.FetchNode(ctx, "bad", nil)
		assert.True(t, domain.IsContentKind(err, domain.ContentMalformed))

		_, err = c.FetchNode(ctx, "garbage", nil)
		assert.True(t, domain.IsContentKind(err, domain.ContentMalformed))
	})
}

func TestClient_FetchReviews(t *testing.T) {
	c, calls := fakeAPI(t)

	cards, err := c.FetchReviews(context.Background(), domain.ReviewFilter{ProductCode: "P1", CruiseLine: "MSC", Limit: 6})
	require.NoError(t, err)
	require.Len(t, cards, 1, "undecodable cards are skipped")
	assert.Equal(t, "11", cards[0].ID)
	assert.Equal(t, 5, cards[0].Rating)
	assert.Equal(t, []string{"/img/a%20b.jpg"}, cards[0].Images)
	assert.Equal(t, "cruiseLine=MSC&limit=6&productCode=P1", (*calls)[0].query)
}

func TestClient_Sessions(t *testing.T) {
	c, calls := fakeAPI(t)
	ctx := context.Background()

	id, err := c.CreateSession(ctx, domain.SessionCreate{FlowID: "7", ProductCode: "P1", StartedAt: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	key := "A"
	require.NoError(t, c.AppendResponse(ctx, domain.ResponseRecord{SessionID: id, QuestionID: "1", SelectedChoiceKey: &key}))
	require.NoError(t, c.PatchSession(ctx, id, domain.SessionPatch{Status: domain.SessionCompleted, IsCompleted: true}))

	require.Len(t, *calls, 3)
	assert.Equal(t, "7", (*calls)[0].body["flowId"])
	assert.Equal(t, "A", (*calls)[1].body["selectedOption"])
	assert.Equal(t, http.MethodPatch, (*calls)[2].method)
	assert.Equal(t, "42", (*calls)[2].body["sessionId"])
	assert.Equal(t, "COMPLETED", (*calls)[2].body["finalStatus"])
}

func TestClient_AppendResponseBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := content.NewClient(contentapi.New(srv.URL), content.WithTimeouts(content.Timeouts{Session: 50 * time.Millisecond}))

	done := make(chan error, 1)
	go func() {
		done <- client.AppendResponse(context.Background(), domain.ResponseRecord{SessionID: "42", QuestionID: "1"})
	}()

	select {
	case err := <-done:
		assert.True(t, domain.IsContentKind(err, domain.ContentTimeout), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("AppendResponse ignored the session timeout")
	}
}

func TestClient_DefaultTransportTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, contentapi.DefaultHTTPTimeout)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := contentapi.New(srv.URL)
	_, err := c.FetchNode(context.Background(), "1", nil)
	assert.True(t, domain.IsContentKind(err, domain.ContentUnavailable))
}
