package validator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/genie/pkg/content"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/ports"
)

// Report is the outcome of a graph crawl.
type Report struct {
	Start     string
	Reachable int
	Errors    []string
	// Warnings do not fail validation: unreachable nodes and edgeless choices
	// that fall back to the final page.
	Warnings []string
}

// Err joins the errors of the report, or returns nil.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("found %d errors:\n- %s", len(r.Errors), strings.Join(r.Errors, "\n- "))
}

type finalPager interface {
	FinalPageURL(id string) string
}

type options struct {
	finalPage string
}

// Option configures ValidateGraph.
type Option func(*options)

// WithFinalPage declares the flow-wide final page that edgeless choices fall back to.
func WithFinalPage(url string) Option {
	return func(o *options) {
		o.finalPage = url
	}
}

// ValidateGraph crawls src from its start node and reports broken links,
// empty labels, dead ends and unreachable nodes. Intents are resolved with
// intents before edges are checked, as the content client does at runtime.
// The returned error is reserved for failures of the source itself.
func ValidateGraph(ctx context.Context, src ports.NodeSource, intents content.IntentTable, opts ...Option) (*Report, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	report := &Report{Start: src.StartNodeID()}
	if report.Start == "" {
		report.Errors = append(report.Errors, "flow has no start node")
		return report, nil
	}

	pager, _ := src.(finalPager)

	visited := make(map[string]bool)
	queue := []string{report.Start}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		node, err := src.GetNode(ctx, currentID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Missing node or load error: '%s'", currentID))
			continue
		}
		intents.Tag(node)
		report.Reachable++

		hasFinal := o.finalPage != "" || (pager != nil && pager.FinalPageURL(node.ID) != "")
		if node.IsTerminal() && !hasFinal {
			report.Errors = append(report.Errors, fmt.Sprintf("Node '%s' has no choices and no final page", node.ID))
		}

		for i, c := range node.Choices {
			if strings.TrimSpace(c.Label) == "" {
				report.Errors = append(report.Errors, fmt.Sprintf("Node '%s' choice %d has an empty label", node.ID, i))
			}
			switch {
			case c.HasEdge():
				if !visited[c.NextNodeID] {
					queue = append(queue, c.NextNodeID)
				}
			case c.MoreReviews, c.Intent != "" && c.Intent != domain.IntentNone:
			case hasFinal:
				report.Warnings = append(report.Warnings, fmt.Sprintf("Node '%s' choice '%s' falls back to the final page", node.ID, c.Label))
			default:
				report.Errors = append(report.Errors, fmt.Sprintf("Node '%s' choice '%s' leads nowhere", node.ID, c.Label))
			}
		}
	}

	all, err := src.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	slices.Sort(all)
	for _, id := range all {
		if !visited[id] {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Node '%s' is unreachable from '%s'", id, report.Start))
		}
	}
	return report, nil
}
