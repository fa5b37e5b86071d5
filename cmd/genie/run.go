package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/internal/presentation/tui"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/aretw0/genie/pkg/observability"
	"github.com/aretw0/genie/pkg/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flow]",
	Short: "Chat through a flow in the terminal",
	Long: `Runs one conversation interactively. Answer with the number of a choice or
its label; 'exit' or end of input leaves the conversation as abandoned.
With --id, a conversation saved in the configured store is resumed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 && !cmd.Flags().Changed("flow") {
			cfg.Flow = args[0]
		}
		productCode, _ := cmd.Flags().GetString("product")
		cruiseLine, _ := cmd.Flags().GetString("cruise-line")
		jsonMode, _ := cmd.Flags().GetBool("json")
		id, _ := cmd.Flags().GetString("id")

		engine, err := newEngine(observability.LoggingHooks(logger))
		if err != nil {
			return err
		}

		store, _, closeStore, err := newStore()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conv, err := openConversation(ctx, engine, store, id, parseProduct(productCode, cruiseLine))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var handler runner.IOHandler
		if jsonMode {
			handler = runner.NewJSONHandler(cmd.InOrStdin(), out)
		} else {
			var opts []runner.TextHandlerOption
			if tui.IsTerminal(out) {
				tui.PrintBanner(out, strings.TrimSpace(genie.Version))
				opts = append(opts, runner.WithTextHandlerRenderer(tui.NewRenderer()))
			}
			handler = runner.NewTextHandler(cmd.InOrStdin(), out, opts...)
		}

		r := runner.New(
			runner.WithInputHandler(handler),
			runner.WithLogger(logger),
			runner.WithStore(store),
			runner.WithMaxInputSize(cfg.Input.MaxSize),
		)
		if err := r.Run(ctx, conv); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

type snapshotLoader interface {
	Load(ctx context.Context, id string) (*domain.ConversationSnapshot, error)
}

func openConversation(ctx context.Context, engine *genie.Engine, store snapshotLoader, id string, product *domain.ProductContext) (*flow.Conversation, error) {
	if id == "" {
		return engine.NewConversation("", product), nil
	}
	snap, err := store.Load(ctx, id)
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		return engine.NewConversation(id, product), nil
	case err != nil:
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	case snap.State == domain.StateTerminated:
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrTerminated)
	}
	return engine.Resume(snap), nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("product", "", "Product code giving the conversation its product context")
	runCmd.Flags().String("cruise-line", "", "Cruise line of the product")
	runCmd.Flags().String("id", "", "Conversation id; resumes it when the store holds it")
	runCmd.Flags().Bool("json", false, "Exchange JSON lines instead of text")
}
