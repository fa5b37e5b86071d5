package main

import (
	"fmt"

	"github.com/aretw0/genie/internal/presentation/graph"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [flow]",
	Short: "Export the flow graph visualization",
	Long: `Inspects the flow and outputs a Mermaid diagram (graph TD) of its nodes and choices.
With --conversation, the nodes a stored conversation has shown are highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, _, err := openSource(flowArg(cmd, args))
		if err != nil {
			return err
		}

		ids, err := src.ListNodes(ctx)
		if err != nil {
			return fmt.Errorf("error inspecting graph: %w", err)
		}
		nodes := make([]*domain.QuestionNode, 0, len(ids))
		for _, id := range ids {
			node, err := src.GetNode(ctx, id)
			if err != nil {
				return fmt.Errorf("error inspecting node %s: %w", id, err)
			}
			cfg.Intents.Tag(node)
			nodes = append(nodes, node)
		}

		var overlay *graph.GraphOverlay
		if id, _ := cmd.Flags().GetString("conversation"); id != "" {
			store, _, closeStore, err := newStore()
			if err != nil {
				return err
			}
			defer closeStore()
			snap, err := store.Load(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load conversation %s: %w", id, err)
			}
			overlay = graph.OverlayFromSnapshot(snap)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(nodes, src.StartNodeID(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("conversation", "", "Highlight the path of a stored conversation")
}
