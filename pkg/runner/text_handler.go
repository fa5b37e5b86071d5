package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/genie/pkg/domain"
)

// ContentRenderer transforms bot text before it is printed.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so Input can honour cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')

		// If we got text (even with EOF), send it
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}

		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			// Backoff for non-fatal errors to prevent CPU spikes on persistent failure
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (h *TextHandler) Output(ctx context.Context, msgs []domain.Message, node *domain.QuestionNode) error {
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			continue
		}
		h.printMessage(m)
	}
	if node == nil {
		return nil
	}
	fmt.Fprintln(h.Writer)
	for i, c := range node.Choices {
		fmt.Fprintf(h.Writer, "  %d) %s\n", i+1, c.Label)
	}
	return nil
}

func (h *TextHandler) printMessage(m domain.Message) {
	if m.Text != "" {
		output := m.Text
		if h.Renderer != nil {
			if rendered, err := h.Renderer(m.Text); err == nil {
				output = rendered
			}
		}
		prefix := ""
		switch m.Kind {
		case domain.KindError, domain.KindFatal:
			prefix = "[!] "
		}
		fmt.Fprintln(h.Writer, prefix+strings.TrimSpace(output))
	}
	for _, r := range m.Reviews {
		fmt.Fprintf(h.Writer, "  %s %s", stars(r.Rating), r.Author)
		if r.ShipName != "" {
			fmt.Fprintf(h.Writer, " (%s)", r.ShipName)
		}
		fmt.Fprintln(h.Writer)
		if r.Title != "" {
			fmt.Fprintf(h.Writer, "    %s\n", r.Title)
		}
		fmt.Fprintf(h.Writer, "    %s\n", strings.TrimSpace(r.Body))
		for _, img := range r.Images {
			fmt.Fprintf(h.Writer, "    [image] %s\n", img)
		}
	}
	for _, a := range m.Attachments {
		switch a.Type {
		case domain.AttachmentGallery:
			fmt.Fprintf(h.Writer, "  [gallery] %s (%d images)\n", a.Title, len(a.Items))
		case domain.AttachmentVideo:
			fmt.Fprintf(h.Writer, "  [video] %s\n", a.Title)
		}
	}
}

func stars(rating int) string {
	rating = domain.ClampRating(rating)
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	// Ensure the pump is running
	h.initPump()

	for {
		// Only show prompt if context is not yet done
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, "> ")
		}

		select {
		case <-ctx.Done():
			// Important: don't print anything here, just exit silently
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			text := strings.TrimSpace(res.text)
			if text == "" {
				continue
			}
			return text, nil
		}
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(h.Writer, "\n[System] %s\n", msg)
	return nil
}
