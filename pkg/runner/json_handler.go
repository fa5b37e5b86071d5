package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/aretw0/genie/pkg/domain"
)

// Frame is one line emitted by the JSONHandler.
type Frame struct {
	Messages []domain.Message `json:"messages,omitempty"`
	NodeID   string           `json:"node_id,omitempty"`
	Choices  []string         `json:"choices,omitempty"`
	System   string           `json:"system,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(ctx context.Context, msgs []domain.Message, node *domain.QuestionNode) error {
	frame := Frame{Messages: msgs}
	if node != nil {
		frame.NodeID = node.ID
		frame.Choices = node.Labels()
	}
	if len(frame.Messages) == 0 && frame.NodeID == "" {
		return nil
	}
	return h.Encoder.Encode(frame)
}

// Input reads one line. A JSON string is unquoted; anything else is used as is,
// so both `"네"` and `1` select a choice. The runner validates the answer.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && !(err == io.EOF && text != "") {
		return "", err
	}

	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		return val, nil
	}
	return text, nil
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(Frame{System: msg})
}
