package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/ports"
)

// Mask replaces every match of a PII pattern.
const Mask = "***"

// DefaultPIIPatterns match e-mail addresses and Korean mobile numbers.
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	`01[016789][ \-]?\d{3,4}[ \-]?\d{4}`,
}

type piiMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks text matching any of the
// patterns in stored transcripts and review cards. The in-memory snapshot is
// left untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, id string, snap *domain.ConversationSnapshot) error {
	cloned := snap.Clone()
	for i := range cloned.Transcript {
		msg := &cloned.Transcript[i]
		msg.Text = m.mask(msg.Text)
		msg.Reviews = append([]domain.ReviewCard(nil), msg.Reviews...)
		m.maskReviews(msg.Reviews)
	}
	m.maskReviews(cloned.Reviews.Pool)
	return m.next.Save(ctx, id, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (*domain.ConversationSnapshot, error) {
	return m.next.Load(ctx, id)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Review authors and bodies are free text written by other travellers.
func (m *piiMiddleware) maskReviews(cards []domain.ReviewCard) {
	for i := range cards {
		cards[i].Author = m.mask(cards[i].Author)
		cards[i].Body = m.mask(cards[i].Body)
	}
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}
