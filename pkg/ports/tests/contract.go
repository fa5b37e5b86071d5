package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/ports"
)

// NodeSourceContractTest is a reusable test suite that verifies if an adapter complies with ports.NodeSource.
// expected maps every node id of the source to its question text.
func NodeSourceContractTest(t *testing.T, source ports.NodeSource, expected map[string]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("StartNodeID", func(t *testing.T) {
		start := source.StartNodeID()
		if _, ok := expected[start]; !ok {
			t.Errorf("start node %q is not one of the expected nodes", start)
		}
	})

	t.Run("GetNode_Success", func(t *testing.T) {
		for id, text := range expected {
			node, err := source.GetNode(ctx, id)
			if err != nil {
				t.Fatalf("unexpected error getting node %s: %v", id, err)
			}
			if node.ID != id {
				t.Errorf("id mismatch: got %q, want %q", node.ID, id)
			}
			if node.Text != text {
				t.Errorf("text mismatch for %s. got %q, want %q", id, node.Text, text)
			}
		}
	})

	t.Run("GetNode_ReturnsCopies", func(t *testing.T) {
		for id := range expected {
			node, err := source.GetNode(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			node.Text = "mutated"
			again, err := source.GetNode(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if again.Text == "mutated" {
				t.Errorf("GetNode(%s) leaked internal state", id)
			}
			return
		}
	})

	t.Run("GetNode_NotFound", func(t *testing.T) {
		_, err := source.GetNode(ctx, "non-existent-node")
		if !errors.Is(err, domain.ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound for non-existent node, got %v", err)
		}
	})

	t.Run("ListNodes", func(t *testing.T) {
		nodes, err := source.ListNodes(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing nodes: %v", err)
		}

		if len(nodes) != len(expected) {
			t.Errorf("expected %d nodes, got %d", len(expected), len(nodes))
		}

		lookup := make(map[string]bool)
		for _, id := range nodes {
			lookup[id] = true
		}
		for id := range expected {
			if !lookup[id] {
				t.Errorf("node %s missing from list", id)
			}
		}
	})
}
