package memory

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aretw0/genie/pkg/content"
	"github.com/aretw0/genie/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Flow is a complete question graph in one document.
// Nodes and reviews use the content service's wire shape.
type Flow struct {
	ID           string             `yaml:"id" json:"id"`
	Start        string             `yaml:"start" json:"start"`
	FinalPageURL string             `yaml:"final_page_url" json:"final_page_url"`
	Products     map[string]Product `yaml:"products" json:"products"`
	Nodes        []map[string]any   `yaml:"nodes" json:"nodes"`
	Reviews      []map[string]any   `yaml:"reviews" json:"reviews"`
}

// LoadFlow decodes a flow document. JSON is accepted as well as YAML.
func LoadFlow(r io.Reader) (*Flow, error) {
	var f Flow
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}
	return &f, nil
}

// LoadFlowFile reads a flow document from disk.
func LoadFlowFile(path string) (*Flow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow file: %w", err)
	}
	defer file.Close()
	return LoadFlow(file)
}

// Source builds the node source of the flow.
func (f *Flow) Source() (*Source, error) {
	src := &Source{
		start:  f.Start,
		nodes:  make(map[string]*domain.QuestionNode, len(f.Nodes)),
		finals: make(map[string]string),
	}
	for i, raw := range f.Nodes {
		node, final, err := content.DecodeQuestion(raw)
		if err != nil {
			return nil, fmt.Errorf("node #%d: %w", i, err)
		}
		if _, dup := src.nodes[node.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}
		src.nodes[node.ID] = node
		if final != "" {
			src.finals[node.ID] = final
		}
	}
	if src.start == "" && len(f.Nodes) > 0 {
		src.start = firstNode(src.nodes)
	}
	return src, nil
}

// ReviewCards decodes the flow's reviews.
func (f *Flow) ReviewCards() ([]domain.ReviewCard, error) {
	cards := make([]domain.ReviewCard, 0, len(f.Reviews))
	for i, raw := range f.Reviews {
		card, err := content.DecodeReview(raw)
		if err != nil {
			return nil, fmt.Errorf("review #%d: %w", i, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// Service builds a content service that serves the flow.
func (f *Flow) Service(opts ...ServiceOption) (*Service, error) {
	src, err := f.Source()
	if err != nil {
		return nil, err
	}
	cards, err := f.ReviewCards()
	if err != nil {
		return nil, err
	}
	base := []ServiceOption{
		WithFlowID(f.ID),
		WithFinalPageURL(f.FinalPageURL),
		WithProducts(f.Products),
		WithReviews(cards...),
	}
	return NewService(src, append(base, opts...)...), nil
}

// firstNode picks the node with the lowest order, then the lowest id.
func firstNode(nodes map[string]*domain.QuestionNode) string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aok := nodes[ids[i]].Sequence()
		b, bok := nodes[ids[j]].Sequence()
		if aok != bok {
			return aok
		}
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids[0]
}

// Source implements ports.NodeSource over decoded nodes.
type Source struct {
	start  string
	nodes  map[string]*domain.QuestionNode
	finals map[string]string
}

// NewSource creates a source from nodes. An empty start picks the lowest order.
func NewSource(start string, nodes ...*domain.QuestionNode) *Source {
	src := &Source{
		start:  start,
		nodes:  make(map[string]*domain.QuestionNode, len(nodes)),
		finals: make(map[string]string),
	}
	for _, n := range nodes {
		src.nodes[n.ID] = n.Clone()
	}
	if src.start == "" && len(nodes) > 0 {
		src.start = firstNode(src.nodes)
	}
	return src
}

func (s *Source) StartNodeID() string {
	return s.start
}

// ListNodes returns the node ids in lexical order.
func (s *Source) ListNodes(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Source) GetNode(ctx context.Context, id string) (*domain.QuestionNode, error) {
	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return node.Clone(), nil
}

// FinalPageURL returns the node's own final page URL, if declared.
func (s *Source) FinalPageURL(id string) string {
	return s.finals[id]
}
