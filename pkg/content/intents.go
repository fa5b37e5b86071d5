package content

import (
	"strings"

	"github.com/aretw0/genie/pkg/domain"
)

// IntentRule tags a choice whose label contains every fragment of any AllOf group.
type IntentRule struct {
	Intent domain.Intent `yaml:"intent" json:"intent"`
	// AnyOf lists alternative groups; a group matches when all its fragments occur.
	AnyOf [][]string `yaml:"any_of" json:"any_of"`
}

// IntentTable maps choice labels to intents. Rules are evaluated in order and
// the first match wins.
type IntentTable struct {
	Rules []IntentRule `yaml:"rules" json:"rules"`
	// MoreReviews lists label fragments that mark the "show more reviews" affordance.
	MoreReviews []string `yaml:"more_reviews" json:"more_reviews"`
}

// DefaultIntentTable is the vocabulary of the Korean storefront.
func DefaultIntentTable() IntentTable {
	return IntentTable{
		Rules: []IntentRule{
			{Intent: domain.IntentPayment, AnyOf: [][]string{{"결제"}, {"예약"}}},
			{Intent: domain.IntentInquiry, AnyOf: [][]string{{"상담 신청"}, {"상담신청"}}},
			{Intent: domain.IntentDefer, AnyOf: [][]string{{"가족", "상의"}}},
		},
		MoreReviews: []string{"후기 보기", "더 많이 보고", "리뷰 더 보기", "실제 고객 후기"},
	}
}

// Classify returns the intent for a label, or IntentNone.
func (t IntentTable) Classify(label string) domain.Intent {
	label = strings.TrimSpace(label)
	for _, rule := range t.Rules {
		for _, group := range rule.AnyOf {
			if len(group) > 0 && containsAll(label, group) {
				return rule.Intent
			}
		}
	}
	return domain.IntentNone
}

// IsMoreReviews reports whether a label asks for more reviews.
func (t IntentTable) IsMoreReviews(label string) bool {
	for _, frag := range t.MoreReviews {
		if frag != "" && strings.Contains(label, frag) {
			return true
		}
	}
	return false
}

// Tag resolves intents on every choice of the node, in place.
// Choices that already carry an explicit intent keep it; review affordances are never terminal.
func (t IntentTable) Tag(node *domain.QuestionNode) {
	if node == nil {
		return
	}
	for i := range node.Choices {
		c := &node.Choices[i]
		if t.IsMoreReviews(c.Label) {
			c.MoreReviews = true
		}
		if c.Intent != "" {
			continue
		}
		if c.MoreReviews {
			c.Intent = domain.IntentNone
			continue
		}
		c.Intent = t.Classify(c.Label)
	}
}

func containsAll(s string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(s, f) {
			return false
		}
	}
	return true
}
