package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/genie/pkg/domain"
)

// GraphOverlay contains conversation state to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromSnapshot marks the nodes a conversation has shown.
func OverlayFromSnapshot(snap *domain.ConversationSnapshot) *GraphOverlay {
	if snap == nil {
		return nil
	}
	overlay := &GraphOverlay{}
	for _, m := range snap.Transcript {
		if m.Kind == domain.KindQuestion && m.NodeID != "" {
			overlay.VisitedNodes = append(overlay.VisitedNodes, m.NodeID)
		}
	}
	if snap.CurrentNode != nil {
		overlay.CurrentNode = snap.CurrentNode.ID
	}
	return overlay
}

// GenerateMermaid produces a Mermaid flowchart syntax string from a list of nodes.
// It applies semantic styling:
// - Start: ((Circle))
// - Terminal (no choices): ([Stadium])
// - Default: [Rectangle]
// Choices carrying a terminal or defer intent point at shared intent sinks.
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(nodes []*domain.QuestionNode, startID string, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	sinks := make(map[domain.Intent]bool)

	for _, node := range nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch {
		case node.ID == startID:
			opener, closer = "((", "))"
		case node.IsTerminal():
			opener, closer = "([", "])"
		}

		label := node.ID
		if node.SequenceIndex != nil {
			label = fmt.Sprintf("%s <br/> #%d", node.ID, *node.SequenceIndex)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, c := range node.Choices {
			target := ""
			arrow := "-->"
			switch {
			case c.HasEdge():
				target = sanitizeMermaidID(c.NextNodeID)
			case c.MoreReviews:
				// Stays on the node.
				target = safeID
				arrow = "-.->"
			case c.Intent != "" && c.Intent != domain.IntentNone:
				target = sinkID(c.Intent)
				sinks[c.Intent] = true
				arrow = "-.->"
			default:
				continue
			}
			safeLabel := strings.ReplaceAll(c.Label, "\"", "'")
			if arrow == "-.->" {
				fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", safeID, safeLabel, target)
			} else {
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, safeLabel, target)
			}
		}
	}

	for _, intent := range []domain.Intent{domain.IntentPayment, domain.IntentInquiry, domain.IntentDefer} {
		if sinks[intent] {
			fmt.Fprintf(&sb, "    %s{{\"%s\"}}\n", sinkID(intent), intent)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func sinkID(i domain.Intent) string {
	return "intent_" + strings.ToLower(string(i))
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	// Mermaid rejects ids that start with a digit in some renderers.
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "n" + s
	}
	return s
}
