package content

import (
	"testing"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestIntentTable_Classify(t *testing.T) {
	table := DefaultIntentTable()

	tests := []struct {
		label string
		want  domain.Intent
	}{
		{"💳 바로 결제하기", domain.IntentPayment},
		{"예약할게요", domain.IntentPayment},
		{"상담 신청하기", domain.IntentInquiry},
		{"상담신청", domain.IntentInquiry},
		{"가족과 상의해볼게요", domain.IntentDefer},
		{"가족 여행이에요", domain.IntentNone},
		{"네, 좋아요", domain.IntentNone},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Classify(tt.label))
		})
	}
}

func TestIntentTable_Tag(t *testing.T) {
	node := &domain.QuestionNode{
		ID: "q",
		Choices: []domain.Choice{
			{Label: "결제하기"},
			{Label: "📸 실제 고객 후기 더 보기"},
			{Label: "예약 후기 보기"},
			{Label: "Custom", Intent: domain.IntentInquiry},
		},
	}
	DefaultIntentTable().Tag(node)

	assert.Equal(t, domain.IntentPayment, node.Choices[0].Intent)
	assert.True(t, node.Choices[1].MoreReviews)
	assert.Equal(t, domain.IntentNone, node.Choices[1].Intent)
	assert.True(t, node.Choices[2].MoreReviews)
	assert.Equal(t, domain.IntentNone, node.Choices[2].Intent, "review affordances never end the conversation")
	assert.Equal(t, domain.IntentInquiry, node.Choices[3].Intent, "explicit tags are kept")
}

func TestIntentTable_CustomVocabulary(t *testing.T) {
	table := IntentTable{
		Rules: []IntentRule{{Intent: domain.IntentPayment, AnyOf: [][]string{{"Book"}}}},
	}
	assert.Equal(t, domain.IntentPayment, table.Classify("Book now"))
	assert.Equal(t, domain.IntentNone, table.Classify("결제"))
	assert.False(t, table.IsMoreReviews("후기 보기"))
}
