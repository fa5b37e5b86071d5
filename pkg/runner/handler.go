package runner

import (
	"context"

	"github.com/aretw0/genie/pkg/domain"
)

// IOHandler defines the strategy for interacting with the visitor.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents the transcript entries appended since the last call.
	// node is the node awaiting a choice, or nil when no input is expected.
	Output(ctx context.Context, msgs []domain.Message, node *domain.QuestionNode) error

	// Input reads one answer from the visitor.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (e.g. an unknown choice, the final redirect).
	// This is distinct from transcript rendering.
	SystemOutput(ctx context.Context, msg string) error
}
