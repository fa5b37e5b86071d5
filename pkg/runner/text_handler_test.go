package runner

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/genie/pkg/domain"
)

func TestTextHandler_Output(t *testing.T) {
	outBuf := &bytes.Buffer{}
	handler := NewTextHandler(strings.NewReader(""), outBuf, WithTextHandlerRenderer(func(s string) (string, error) {
		return "Rendered: " + s, nil
	}))

	msgs := []domain.Message{
		{Role: domain.RoleBot, Kind: domain.KindQuestion, NodeID: "q1", Text: "Hello World"},
		{Role: domain.RoleUser, Kind: domain.KindAnswer, Text: "echoed answer"},
		{Role: domain.RoleBot, Kind: domain.KindReview, Reviews: []domain.ReviewCard{
			{ID: "r1", Author: "kim", Rating: 4, Body: "great trip", ShipName: "Bellissima", Images: []string{"/img/a.jpg"}},
		}},
		{Role: domain.RoleBot, Kind: domain.KindError, Text: "try again"},
	}
	node := &domain.QuestionNode{ID: "q1", Choices: []domain.Choice{{Label: "네"}, {Label: "아니요"}}}

	if err := handler.Output(context.Background(), msgs, node); err != nil {
		t.Fatalf("Output failed: %v", err)
	}

	output := outBuf.String()
	for _, want := range []string{
		"Rendered: Hello World",
		"★★★★☆ kim (Bellissima)",
		"great trip",
		"[image] /img/a.jpg",
		"[!] Rendered: try again",
		"1) 네",
		"2) 아니요",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, output)
		}
	}
	if strings.Contains(output, "echoed answer") {
		t.Errorf("Visitor messages must not be echoed, got:\n%s", output)
	}
}

func TestTextHandler_Input(t *testing.T) {
	outBuf := &bytes.Buffer{}
	handler := NewTextHandler(strings.NewReader("\n  my user input  \n"), outBuf)

	val, err := handler.Input(context.Background())
	if err != nil {
		t.Fatalf("Input failed: %v", err)
	}
	if val != "my user input" {
		t.Errorf("Expected 'my user input', got '%s'", val)
	}

	// The blank line is skipped with a second prompt.
	if prompt := outBuf.String(); prompt != "> > " {
		t.Errorf("Expected prompt '> > ', got '%s'", prompt)
	}

	if _, err := handler.Input(context.Background()); err != io.EOF {
		t.Errorf("Expected io.EOF at end of input, got %v", err)
	}
}

func TestTextHandler_InputCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	handler := NewTextHandler(pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := handler.Input(ctx); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
