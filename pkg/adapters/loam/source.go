// Package loam reads a flow from a directory of Markdown, JSON or YAML documents
// through the Loam library.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/genie/pkg/content"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/loam"
)

// ReviewsDir holds review documents.
const ReviewsDir = "reviews"

// Source implements ports.NodeSource on a Loam repository.
type Source struct {
	Repo *loam.TypedRepository[Metadata]

	start string

	once     sync.Once
	startErr error
}

// Option configures a Source.
type Option func(*Source)

// WithStartNode sets the first node. By default the node with the lowest order is used.
func WithStartNode(id string) Option {
	return func(s *Source) {
		s.start = id
	}
}

// New creates a new Loam source.
func New(repo *loam.TypedRepository[Metadata], opts ...Option) *Source {
	s := &Source{Repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open initializes a read-only, strict Loam repository at path.
func Open(path string, opts ...Option) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode yields json.Number for every numeric field, whatever the format.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[Metadata](repo), opts...), nil
}

type entry struct {
	id     string
	path   string
	node   *domain.QuestionNode
	final  string
	review bool
	card   domain.ReviewCard
}

func (s *Source) scan(ctx context.Context) ([]entry, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	entries := make([]entry, 0, len(docs))
	for _, doc := range docs {
		path := filepath.ToSlash(doc.ID)
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = filepath.Base(path)
		}
		id := trimExtension(rawID)

		if strings.HasPrefix(path, ReviewsDir+"/") {
			card, err := content.DecodeReview(doc.Data.review(id, strings.TrimSpace(doc.Content)))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			entries = append(entries, entry{id: id, path: path, review: true, card: card})
			continue
		}

		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existing, path)
		}
		seen[id] = path

		node, final, err := content.DecodeQuestion(doc.Data.question(id, strings.TrimSpace(doc.Content)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		entries = append(entries, entry{id: id, path: path, node: node, final: final})
	}
	return entries, nil
}

// StartNodeID returns the configured start node, or the node with the lowest order.
func (s *Source) StartNodeID() string {
	s.once.Do(func() {
		if s.start != "" {
			return
		}
		entries, err := s.scan(context.Background())
		if err != nil {
			s.startErr = err
			return
		}
		best := -1
		for i, e := range entries {
			if e.review {
				continue
			}
			if best < 0 || before(e, entries[best]) {
				best = i
			}
		}
		if best >= 0 {
			s.start = entries[best].id
		}
	})
	return s.start
}

func before(a, b entry) bool {
	ai, aok := a.node.Sequence()
	bi, bok := b.node.Sequence()
	if aok != bok {
		return aok
	}
	if ai != bi {
		return ai < bi
	}
	return a.id < b.id
}

// ListNodes returns the question node ids. Collisions are reported as errors.
func (s *Source) ListNodes(ctx context.Context) ([]string, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.review {
			ids = append(ids, e.id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetNode loads a question document. Documents are found by file name first,
// then by their declared id.
func (s *Source) GetNode(ctx context.Context, id string) (*domain.QuestionNode, error) {
	node, _, err := s.get(ctx, id)
	return node, err
}

// FinalPageURL returns the node's declared final page URL, if any.
func (s *Source) FinalPageURL(id string) string {
	_, final, err := s.get(context.Background(), id)
	if err != nil {
		return ""
	}
	return final
}

func (s *Source) get(ctx context.Context, id string) (*domain.QuestionNode, string, error) {
	doc, err := s.Repo.Get(ctx, id)
	if err == nil && !strings.HasPrefix(filepath.ToSlash(doc.ID), ReviewsDir+"/") {
		declared := trimExtension(doc.Data.ID)
		if declared == "" || declared == id {
			return content.DecodeQuestion(doc.Data.question(id, strings.TrimSpace(doc.Content)))
		}
	}

	entries, err := s.scan(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, e := range entries {
		if !e.review && e.id == id {
			return e.node, e.final, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
}

// Reviews returns the review cards stored under reviews/.
func (s *Source) Reviews(ctx context.Context) ([]domain.ReviewCard, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var cards []domain.ReviewCard
	for _, e := range entries {
		if e.review {
			cards = append(cards, e.card)
		}
	}
	return cards, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
