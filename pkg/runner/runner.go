package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/aretw0/genie/pkg/ports"
)

// Runner handles the execution loop of one conversation using the provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs JSON).
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler on Stdin/Stdout is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// Store receives a snapshot after every step.
	// If nil, conversations are ephemeral.
	Store ports.ConversationStore

	// MaxInputSize caps one typed answer in bytes.
	MaxInputSize int
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithStore configures the ConversationStore for persistence.
func WithStore(store ports.ConversationStore) Option {
	return func(r *Runner) {
		r.Store = store
	}
}

// WithMaxInputSize caps the size of one typed answer.
func WithMaxInputSize(n int) Option {
	return func(r *Runner) {
		r.MaxInputSize = n
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	if r.MaxInputSize <= 0 {
		r.MaxInputSize = DefaultMaxInputSize
	}
	return r
}

// Run drives conv until it terminates, the input ends or ctx is cancelled.
// A conversation left before termination is abandoned. End of input is not an error.
func (r *Runner) Run(ctx context.Context, conv *flow.Conversation) error {
	handler := r.resolveHandler()
	shown := 0

	flush := func(node *domain.QuestionNode) error {
		msgs := conv.Messages()
		if shown > len(msgs) {
			shown = 0
		}
		fresh := msgs[shown:]
		shown = len(msgs)
		return handler.Output(ctx, fresh, node)
	}

	if conv.State() == domain.StateInitializing {
		if err := conv.Start(ctx); err != nil {
			return fmt.Errorf("start error: %w", err)
		}
		r.save(ctx, conv)
	} else {
		// Resumed: replay nothing but the node awaiting a choice.
		shown = max(len(conv.Messages())-1, 0)
	}

	for {
		if conv.State() == domain.StateTerminated {
			if err := flush(nil); err != nil {
				return fmt.Errorf("output error: %w", err)
			}
			conv.Wait()
			if url := conv.RedirectURL(); url != "" {
				return handler.SystemOutput(ctx, "Redirect: "+url)
			}
			return nil
		}

		node := conv.CurrentNode()
		if err := flush(node); err != nil {
			return fmt.Errorf("output error: %w", err)
		}

		val, err := handler.Input(ctx)
		if err == nil && isExit(val) {
			err = io.EOF
		}
		if err != nil {
			r.abandon(ctx, conv)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				r.Logger.Debug("Runner input: Context cancelled", "err", ctx.Err())
				return ctx.Err()
			}
			return fmt.Errorf("input error: %w", err)
		}

		val, err = cleanAnswer(val, r.MaxInputSize)
		if err != nil {
			r.Logger.Debug("Answer rejected", "err", err)
			if err := handler.SystemOutput(ctx, fmt.Sprintf("Input ignored: %v.", err)); err != nil {
				return err
			}
			continue
		}
		if val == "" {
			continue
		}

		if conv.State() == domain.StateInitializing {
			// The start failed; any answer retries it.
			if err := conv.Start(ctx); err != nil {
				return fmt.Errorf("start error: %w", err)
			}
			r.save(ctx, conv)
			continue
		}

		sel, ok := resolveSelection(node, val)
		if !ok {
			if err := handler.SystemOutput(ctx, fmt.Sprintf("Unknown choice %q. Type a number between 1 and %d.", val, len(node.Choices))); err != nil {
				return err
			}
			continue
		}

		if err := conv.Advance(ctx, sel); err != nil {
			return fmt.Errorf("advance error: %w", err)
		}
		r.save(ctx, conv)
	}
}

func (r *Runner) abandon(ctx context.Context, conv *flow.Conversation) {
	if conv.State() == domain.StateTerminated {
		return
	}
	conv.Abandon(context.WithoutCancel(ctx))
	conv.Wait()
	r.save(context.WithoutCancel(ctx), conv)
}

func (r *Runner) save(ctx context.Context, conv *flow.Conversation) {
	if r.Store == nil {
		return
	}
	if err := r.Store.Save(ctx, conv.ID(), conv.Snapshot()); err != nil {
		r.Logger.Error("Failed to save conversation", "conversation_id", conv.ID(), "err", err)
		return
	}
	r.Logger.Debug("Conversation saved", "conversation_id", conv.ID(), "state", conv.State())
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler == nil {
		// Memoize to prevent creating new pumps on subsequent Run() calls
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	return r.Handler
}

func isExit(val string) bool {
	return val == "exit" || val == "quit"
}

// resolveSelection maps a 1-based choice number or a label onto the node.
func resolveSelection(node *domain.QuestionNode, val string) (flow.Selection, bool) {
	if node == nil {
		return flow.Selection{}, false
	}
	val = strings.TrimSpace(val)
	if n, err := strconv.Atoi(val); err == nil {
		if n < 1 || n > len(node.Choices) {
			return flow.Selection{}, false
		}
		c := node.Choices[n-1]
		return flow.Selection{Label: c.Label, NextNodeID: c.NextNodeID, NodeID: node.ID}, true
	}
	if c, ok := node.ChoiceByLabel(val); ok {
		return flow.Selection{Label: c.Label, NextNodeID: c.NextNodeID, NodeID: node.ID}, true
	}
	return flow.Selection{}, false
}
