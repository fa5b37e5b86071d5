package flow

import (
	"net/url"
	"strings"
)

// Beat injects one review card before nodes whose sequence index is in [From, To].
// The context key is "<Name>-<index>".
type Beat struct {
	Name  string `yaml:"name" json:"name"`
	From  int    `yaml:"from" json:"from"`
	To    int    `yaml:"to" json:"to"`
	Intro string `yaml:"intro" json:"intro"`
}

// Messages holds the fixed bot lines.
type Messages struct {
	Intro                  string `yaml:"intro" json:"intro"`
	Payment                string `yaml:"payment" json:"payment"`
	Defer                  string `yaml:"defer" json:"defer"`
	MoreReviews            string `yaml:"more_reviews" json:"more_reviews"`
	MoreReviewsFallback    string `yaml:"more_reviews_fallback" json:"more_reviews_fallback"`
	MoreReviewsUnavailable string `yaml:"more_reviews_unavailable" json:"more_reviews_unavailable"`
	StartFailed            string `yaml:"start_failed" json:"start_failed"`
	NodeFailed             string `yaml:"node_failed" json:"node_failed"`
	DeadEnd                string `yaml:"dead_end" json:"dead_end"`
}

// Redirects holds the URL templates of the terminal intents.
// "{productCode}" is replaced with the product code.
type Redirects struct {
	Payment string `yaml:"payment" json:"payment"`
	Inquiry string `yaml:"inquiry" json:"inquiry"`
}

// Settings tunes one conversation.
type Settings struct {
	FlowID string `yaml:"flow_id" json:"flow_id"`

	IntroKey string `yaml:"intro_key" json:"intro_key"`
	Beats    []Beat `yaml:"beats" json:"beats"`

	// ReviewNodes maps a sequence index to the number of cards shown with the node.
	ReviewNodes map[int]int `yaml:"review_nodes" json:"review_nodes"`
	// ReviewNodeKeywords also marks a node as a review node when its text contains one.
	ReviewNodeKeywords []string `yaml:"review_node_keywords" json:"review_node_keywords"`
	ReviewNodeDefault  int      `yaml:"review_node_default" json:"review_node_default"`

	// MoreReviewsLabel is the pseudo-choice appended to review nodes.
	MoreReviewsLabel string `yaml:"more_reviews_label" json:"more_reviews_label"`
	// ReviewOptionMarkers suppress the pseudo-choice when an offered label already contains one.
	ReviewOptionMarkers []string `yaml:"review_option_markers" json:"review_option_markers"`
	MoreReviewsPool     int      `yaml:"more_reviews_pool" json:"more_reviews_pool"`
	MoreReviewsCount    int      `yaml:"more_reviews_count" json:"more_reviews_count"`

	// StripPhrases are removed from bot text before display.
	StripPhrases []string `yaml:"strip_phrases" json:"strip_phrases"`

	Redirects Redirects `yaml:"redirects" json:"redirects"`
	Messages  Messages  `yaml:"messages" json:"messages"`
}

// DefaultSettings returns the storefront defaults.
func DefaultSettings() Settings {
	return Settings{
		IntroKey: "intro",
		Beats: []Beat{
			{Name: "situation", From: 4, To: 9, Intro: "비슷한 상황을 겪은 고객님의 후기를 잠깐 소개드렸어요. 공감되셨나요?"},
			{Name: "solution", From: 20, To: 25, Intro: "🎉 실제로 이렇게 문제를 해결하신 분도 계세요. 우리도 이어서 해결책을 준비해볼까요?"},
		},
		ReviewNodes:         map[int]int{5: 3, 11: 6},
		ReviewNodeKeywords:  []string{"실제 고객 후기", "후기 보여드릴게요"},
		ReviewNodeDefault:   3,
		MoreReviewsLabel:    "📸 실제 고객 후기 더 보기",
		ReviewOptionMarkers: []string{"후기", "리뷰"},
		MoreReviewsPool:     6,
		MoreReviewsCount:    2,
		StripPhrases:        []string{"**크루즈몰 후기 API**", "크루즈몰 후기 API"},
		Redirects: Redirects{
			Payment: "/products/{productCode}/payment",
			Inquiry: "/products/{productCode}/inquiry",
		},
		Messages: Messages{
			Intro:                  "💡 방금 소개한 후기처럼 우리 고객님들도 멋진 경험을 하고 계세요. 계속 상담 도와드릴게요!",
			Payment:                "최고의 선택이에요! 💙\n\n잠시 후 안전한 결제 페이지로 이동해 드릴게요.",
			Defer:                  "물론이에요! 😊 가족분들과 충분히 상의하시고요.\n\n궁금한 점이 생기면 언제든지 다시 불러주세요. AI 지니가 24시간 기다리고 있을게요!",
			MoreReviews:            "추가로 이런 후기도 있었어요. 도움이 되셨나요?",
			MoreReviewsFallback:    "추가 후기를 잠깐 소개드렸어요. 계속 상담 이어갈게요!",
			MoreReviewsUnavailable: "추가 후기를 불러오는 데 잠시 문제가 있었어요. 다른 질문으로 계속 도와드릴게요!",
			StartFailed:            "죄송합니다. 채팅을 불러오는 중 문제가 발생했어요.\n\n잠시 후 다시 시도해주세요.",
			NodeFailed:             "죄송합니다. 다음 질문을 불러오지 못했어요.\n\n다시 시도해주세요.",
			DeadEnd:                "죄송합니다. 상담을 이어갈 수 없어요. 페이지를 새로고침해주세요.",
		},
	}
}

// beatFor returns the beat covering idx.
func (s Settings) beatFor(idx int) (Beat, bool) {
	for _, b := range s.Beats {
		if idx >= b.From && idx <= b.To {
			return b, true
		}
	}
	return Beat{}, false
}

// reviewCount returns how many cards a node shows, or 0 for ordinary nodes.
func (s Settings) reviewCount(idx *int, text string) int {
	if idx != nil {
		if n, ok := s.ReviewNodes[*idx]; ok {
			return n
		}
	}
	lower := strings.ToLower(text)
	for _, kw := range s.ReviewNodeKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return s.ReviewNodeDefault
		}
	}
	return 0
}

func (s Settings) hasReviewOption(labels []string) bool {
	for _, l := range labels {
		for _, m := range s.ReviewOptionMarkers {
			if m != "" && strings.Contains(l, m) {
				return true
			}
		}
	}
	return false
}

// expandRedirect expands a URL template. A remote session id is appended as sessionId.
func expandRedirect(tmpl, productCode, sessionID string) string {
	out := strings.ReplaceAll(tmpl, "{productCode}", url.PathEscape(productCode))
	if sessionID == "" {
		return out
	}
	u, err := url.Parse(out)
	if err != nil {
		return out
	}
	q := u.Query()
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}
